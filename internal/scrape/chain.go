// Package scrape extracts readable article text from web pages through a
// chain of scrapers.
package scrape

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
	maxChars int
}

// NewChain creates a Chain. Extracted text is capped at maxChars runes.
func NewChain(maxChars int, scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers, maxChars: maxChars}
}

// Scrape tries each scraper in order for a single URL.
// Returns the first successful result, or an error if all fail.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			result.Page.Text = Truncate(result.Page.Text, c.maxChars)
			return result, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// Text returns the readable text for targetURL, or "" when every scraper
// fails. Failures are logged, never returned.
func (c *Chain) Text(ctx context.Context, targetURL string) string {
	res, err := c.Scrape(ctx, targetURL)
	if err != nil {
		zap.L().Warn("scrape: full text unavailable",
			zap.String("url", targetURL),
			zap.Error(err),
		)
		return ""
	}
	return res.Page.Text
}

// ScrapeAll fetches multiple URLs in parallel and returns the text keyed by
// URL. Failed URLs are skipped.
func (c *Chain) ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) map[string]Page {
	var mu sync.Mutex
	pages := make(map[string]Page, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}

	for _, u := range urls {
		g.Go(func() error {
			result, err := c.Scrape(gCtx, u)
			if err != nil {
				zap.L().Debug("scrape: chain failed for url",
					zap.String("url", u),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			pages[u] = result.Page
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return pages
}
