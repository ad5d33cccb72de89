package monitoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/delivery"
)

// Runner is one delivery pass. delivery.Scheduler satisfies it.
type Runner interface {
	Run(ctx context.Context) (delivery.RunReport, error)
}

// Checker wraps a Runner and checks every completed pass for alerts.
type Checker struct {
	runner    Runner
	collector *Collector
	alerter   *Alerter
}

// NewChecker creates a Checker around runner.
func NewChecker(runner Runner, collector *Collector, alerter *Alerter) *Checker {
	return &Checker{
		runner:    runner,
		collector: collector,
		alerter:   alerter,
	}
}

// Run runs one pass and evaluates its report. The pass result is returned
// unchanged; alerting problems are only logged.
func (c *Checker) Run(ctx context.Context) (delivery.RunReport, error) {
	report, err := c.runner.Run(ctx)
	if err != nil {
		return report, err
	}
	c.check(ctx, report)
	return report, nil
}

func (c *Checker) check(ctx context.Context, report delivery.RunReport) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	alerts := c.alerter.Evaluate(c.collector.Collect(report))
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
