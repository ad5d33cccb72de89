package scrape

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	result   *Result
	err      error
	calls    atomic.Int32
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, _ string) (*Result, error) {
	m.calls.Add(1)
	if m.result == nil {
		return nil, m.err
	}
	r := *m.result
	return &r, m.err
}

func ok(name, text string) *mockScraper {
	return &mockScraper{
		name: name, supports: true,
		result: &Result{Page: Page{URL: "https://news.example/a", Text: text}, Source: name},
	}
}

func TestChain_Scrape_FirstSuccess(t *testing.T) {
	s1 := ok("primary", "body")
	s2 := ok("fallback", "other")

	result, err := NewChain(0, s1, s2).Scrape(context.Background(), "https://news.example/a")
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Zero(t, s2.calls.Load())
}

func TestChain_Scrape_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("failed")}
	s2 := ok("fallback", "body")

	result, err := NewChain(0, s1, s2).Scrape(context.Background(), "https://news.example/a")
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Source)
}

func TestChain_Scrape_SkipsUnsupported(t *testing.T) {
	s1 := ok("primary", "body")
	s1.supports = false
	s2 := ok("fallback", "body")

	result, err := NewChain(0, s1, s2).Scrape(context.Background(), "https://news.example/a")
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Source)
	assert.Zero(t, s1.calls.Load())
}

func TestChain_Scrape_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: true, err: errors.New("a down")}
	s2 := &mockScraper{name: "b", supports: true, err: errors.New("b down")}

	_, err := NewChain(0, s1, s2).Scrape(context.Background(), "https://news.example/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all scrapers failed")
	assert.Contains(t, err.Error(), "b down")
}

func TestChain_Scrape_NoSupported(t *testing.T) {
	_, err := NewChain(0, &mockScraper{name: "a"}).Scrape(context.Background(), "https://news.example/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable scraper")
}

func TestChain_Scrape_TruncatesText(t *testing.T) {
	result, err := NewChain(5, ok("primary", "héllo world")).Scrape(context.Background(), "https://news.example/a")
	require.NoError(t, err)
	assert.Equal(t, "héllo", result.Page.Text)
}

func TestChain_Text_EmptyOnFailure(t *testing.T) {
	c := NewChain(0, &mockScraper{name: "a", supports: true, err: errors.New("down")})
	assert.Empty(t, c.Text(context.Background(), "https://news.example/a"))
}

func TestChain_ScrapeAll(t *testing.T) {
	c := NewChain(0, ok("primary", "body"))
	pages := c.ScrapeAll(context.Background(), []string{"https://a.example", "https://b.example"}, 2)
	assert.Len(t, pages, 2)
	assert.Equal(t, "body", pages["https://a.example"].Text)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab", Truncate("abc", 2))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b\n\nc", collapseWhitespace("  a \t b \n\n\n  c  \n\n"))
}
