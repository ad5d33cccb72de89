// Package monitoring raises alerts when a delivery pass goes badly.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/config"
	"github.com/sells-group/digest-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDeliveryFailureRate AlertType = "delivery_failure_rate"
	AlertTopicFailures       AlertType = "topic_failures"
	AlertCostOverrun         AlertType = "cost_overrun"
)

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// webhookPayload is the body posted to the webhook, one per pass.
type webhookPayload struct {
	Source string  `json:"source"`
	Alerts []Alert `json:"alerts"`
}

type rule func(cfg config.MonitoringConfig, snap Snapshot) (Alert, bool)

var rules = []rule{failureRateRule, topicFailureRule, costRule}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter applies monitoring defaults to cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinDeliveries <= 0 {
		cfg.MinDeliveries = 5
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.LogRetry("webhook", "alert")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate returns one alert per breached rule, stamped with the snapshot time.
func (a *Alerter) Evaluate(snap Snapshot) []Alert {
	var alerts []Alert
	for _, r := range rules {
		alert, ok := r(a.cfg, snap)
		if !ok {
			continue
		}
		alert.Timestamp = snap.CollectedAt
		alerts = append(alerts, alert)
	}
	return alerts
}

// failureRateRule is judged only once MinDeliveries sends were attempted.
func failureRateRule(cfg config.MonitoringConfig, snap Snapshot) (Alert, bool) {
	attempted := snap.Attempted()
	if attempted < cfg.MinDeliveries || snap.FailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertDeliveryFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%.1f%% of digests failed to send, limit is %.1f%% (%d failed / %d attempted)",
			snap.FailRate*100, cfg.FailureRateThreshold*100, snap.Failed, attempted),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.Failed,
			"attempted":    attempted,
		},
	}, true
}

// topicFailureRule fires when failed topics are at least as many as sent digests.
func topicFailureRule(_ config.MonitoringConfig, snap Snapshot) (Alert, bool) {
	if snap.Sent == 0 || snap.TopicFailures < snap.Sent {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertTopicFailures,
		Severity: "medium",
		Message:  fmt.Sprintf("%d topic failure(s) across %d sent digest(s)", snap.TopicFailures, snap.Sent),
		Details: map[string]any{
			"topic_failures": snap.TopicFailures,
			"sent":           snap.Sent,
		},
	}, true
}

func costRule(cfg config.MonitoringConfig, snap Snapshot) (Alert, bool) {
	if cfg.CostThresholdUSD <= 0 || snap.SpentUSD <= cfg.CostThresholdUSD {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertCostOverrun,
		Severity: "high",
		Message:  fmt.Sprintf("synthesis spend $%.2f is over $%.2f", snap.SpentUSD, cfg.CostThresholdUSD),
		Details: map[string]any{
			"cost_usd":      snap.SpentUSD,
			"threshold_usd": cfg.CostThresholdUSD,
		},
	}, true
}

// SendAlerts posts every alert in a single webhook call and returns how many
// were delivered: all of them or none.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	body, err := json.Marshal(webhookPayload{Source: "digest-cli", Alerts: alerts})
	if err != nil {
		zap.L().Error("monitoring: marshal alerts", zap.Error(err))
		return 0
	}

	err = resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.post(ctx, body)
	})
	if err != nil {
		zap.L().Error("monitoring: webhook delivery failed",
			zap.Int("alerts", len(alerts)),
			zap.Error(err),
		)
		return 0
	}

	for _, alert := range alerts {
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &resilience.StatusError{Service: "webhook", Code: resp.StatusCode, Body: string(snippet)}
	}
	return nil
}
