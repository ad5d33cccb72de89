package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/digest-cli/internal/resilience"
	"github.com/sells-group/digest-cli/pkg/jina"
)

// challengeSignatures mark interstitial pages returned instead of content.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// JinaAdapter wraps a Jina Reader client as a Scraper with a circuit breaker.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client. Three
// consecutive failures open the circuit for a minute, causing immediate
// fallback to the next scraper.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: resilience.NewCircuitBreaker("jina_reader", 3, time.Minute),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.BreakerOpen
}

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var resp *jina.ReadResponse
	err := j.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return err
		}
		if needsFallback(r) {
			return eris.New("jina: response needs fallback")
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Page: Page{
			URL:   targetURL,
			Title: resp.Data.Title,
			Text:  collapseWhitespace(resp.Data.Content),
		},
		Source: "jina",
	}, nil
}

// needsFallback reports whether a Jina response is empty, an error, or a
// bot challenge rather than the article.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
