// Package search provides the web and news-feed backends used by the
// research pipeline.
package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/digest-cli/internal/fetcher"
	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/pkg/jina"
)

// Backend returns search hits for a query.
type Backend interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// DefaultMaxResults bounds a backend's hits per query.
const DefaultMaxResults = 5

// snippetLimit caps a snippet taken from page content.
const snippetLimit = 500

// JinaBackend searches the web through Jina, rate-limited client side.
type JinaBackend struct {
	client     jina.Client
	limiter    *rate.Limiter
	maxResults int
}

// NewJinaBackend creates a JinaBackend allowing perSecond queries per second.
func NewJinaBackend(client jina.Client, perSecond float64, maxResults int) *JinaBackend {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &JinaBackend{
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
		maxResults: maxResults,
	}
}

// Search runs query and returns at most maxResults hits.
func (b *JinaBackend) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "search: rate limiter wait")
	}

	resp, err := b.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "search: jina")
	}

	out := make([]model.SearchResult, 0, min(len(resp.Data), b.maxResults))
	for _, r := range resp.Data {
		if len(out) == b.maxResults {
			break
		}
		snippet := strings.TrimSpace(r.Description)
		if snippet == "" {
			snippet = truncate(strings.TrimSpace(r.Content), snippetLimit)
		}
		out = append(out, model.SearchResult{
			Title:   strings.TrimSpace(r.Title),
			Link:    strings.TrimSpace(r.URL),
			Snippet: snippet,
		})
	}
	return out, nil
}

// FeedBackend searches a news RSS endpoint such as Google News.
type FeedBackend struct {
	http       fetcher.Fetcher
	baseURL    string
	maxResults int
	parser     *gofeed.Parser
	strip      *bluemonday.Policy
}

// NewFeedBackend creates a FeedBackend querying baseURL?q=<query>.
func NewFeedBackend(http fetcher.Fetcher, baseURL string, maxResults int) *FeedBackend {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &FeedBackend{
		http:       http,
		baseURL:    baseURL,
		maxResults: maxResults,
		parser:     gofeed.NewParser(),
		strip:      bluemonday.StrictPolicy(),
	}
}

// QueryURL builds the feed URL for query.
func (b *FeedBackend) QueryURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("hl", "en-US")
	v.Set("gl", "US")
	v.Set("ceid", "US:en")
	return b.baseURL + "?" + v.Encode()
}

// Search fetches the news feed for query and maps its items to hits.
func (b *FeedBackend) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	body, err := b.http.Download(ctx, b.QueryURL(query))
	if err != nil {
		return nil, eris.Wrap(err, "search: news feed")
	}

	feed, err := b.parser.ParseString(string(body))
	if err != nil {
		return nil, eris.Wrap(err, "search: parse news feed")
	}

	out := make([]model.SearchResult, 0, min(len(feed.Items), b.maxResults))
	for _, item := range feed.Items {
		if len(out) == b.maxResults {
			break
		}
		out = append(out, model.SearchResult{
			Title:   strings.TrimSpace(item.Title),
			Link:    strings.TrimSpace(item.Link),
			Snippet: strings.Join(strings.Fields(b.strip.Sanitize(item.Description)), " "),
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
