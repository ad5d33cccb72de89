// Package mailjet provides a client for the Mailjet v3.1 send API.
package mailjet

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/digest-cli/internal/resilience"
)

// Client sends transactional email.
type Client interface {
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
}

// Address is a sender or recipient.
type Address struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

// Message is one email in a send request.
type Message struct {
	From     Address   `json:"From"`
	To       []Address `json:"To"`
	Subject  string    `json:"Subject"`
	TextPart string    `json:"TextPart,omitempty"`
	HTMLPart string    `json:"HTMLPart,omitempty"`
	CustomID string    `json:"CustomID,omitempty"`
}

// SendRequest is the body of POST /v3.1/send.
type SendRequest struct {
	Messages []Message `json:"Messages"`
}

// SendResponse is the parsed send reply.
type SendResponse struct {
	Messages []MessageResult `json:"Messages"`
}

// MessageResult reports the outcome for one message.
type MessageResult struct {
	Status string          `json:"Status"`
	Errors []MessageError  `json:"Errors,omitempty"`
	To     []MessageStatus `json:"To,omitempty"`
}

// MessageError describes why a message was rejected.
type MessageError struct {
	ErrorCode    string `json:"ErrorCode"`
	StatusCode   int    `json:"StatusCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

// MessageStatus identifies an accepted message.
type MessageStatus struct {
	Email     string `json:"Email"`
	MessageID int64  `json:"MessageID"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	apiKey    string
	secretKey string
	baseURL   string
	http      *http.Client
	retry     resilience.RetryConfig
}

// NewClient creates a Mailjet client using basic auth.
func NewClient(apiKey, secretKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   "https://api.mailjet.com",
		http:      &http.Client{Timeout: 20 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.LogRetry("mailjet", "send")
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, sr SendRequest) (*SendResponse, error) {
	payload, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "mailjet: marshal request")
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3.1/send", bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "mailjet: create request")
		}
		req.SetBasicAuth(c.apiKey, c.secretKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "mailjet: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "mailjet: read response")
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &resilience.StatusError{Service: "mailjet", Code: resp.StatusCode, Body: string(b)}
		}
		return b, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "mailjet: send")
	}

	var result SendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "mailjet: unmarshal response")
	}
	for _, m := range result.Messages {
		if m.Status != "success" {
			detail := m.Status
			if len(m.Errors) > 0 {
				detail = m.Errors[0].ErrorMessage
			}
			return &result, eris.Errorf("mailjet: message rejected: %s", detail)
		}
	}
	return &result, nil
}
