package search

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/digest-cli/pkg/jina"
	jinamocks "github.com/sells-group/digest-cli/pkg/jina/mocks"
)

func TestJinaBackend_Search(t *testing.T) {
	client := jinamocks.NewMockClient(t)
	client.On("Search", mock.Anything, "AI news 2026").Return(&jina.SearchResponse{
		Code: 200,
		Data: []jina.SearchResult{
			{Title: " One ", URL: "https://a.example/1", Description: "first"},
			{Title: "Two", URL: "https://a.example/2", Content: strings.Repeat("x", 600)},
			{Title: "Three", URL: "https://a.example/3", Description: "third"},
		},
	}, nil)

	hits, err := NewJinaBackend(client, 0, 2).Search(context.Background(), "AI news 2026")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "One", hits[0].Title)
	assert.Equal(t, "https://a.example/1", hits[0].Link)
	assert.Equal(t, "first", hits[0].Snippet)
	assert.Len(t, hits[1].Snippet, snippetLimit)
}

func TestJinaBackend_Error(t *testing.T) {
	client := jinamocks.NewMockClient(t)
	client.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("jina: unexpected status 503"))

	_, err := NewJinaBackend(client, 10, 5).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: jina")
}

func TestJinaBackend_CancelledWhileWaiting(t *testing.T) {
	client := jinamocks.NewMockClient(t)
	b := NewJinaBackend(client, 0.001, 5)
	require.True(t, b.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Search(ctx, "q")
	require.Error(t, err)
	client.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

// stubHTTP returns one body for any URL and records the requested URL.
type stubHTTP struct {
	body string
	err  error
	url  string
}

func (s *stubHTTP) Download(_ context.Context, u string) ([]byte, error) {
	s.url = u
	return []byte(s.body), s.err
}

func (s *stubHTTP) DownloadIfChanged(ctx context.Context, u, _ string) ([]byte, string, bool, error) {
	b, err := s.Download(ctx, u)
	return b, "", true, err
}

const newsFeed = `<?xml version="1.0"?><rss version="2.0"><channel><title>Google News</title>
<item><title>Fusion milestone</title><link>https://news.example/fusion</link>
<description>&lt;a href="https://news.example/fusion"&gt;Fusion   milestone&lt;/a&gt; &lt;font&gt;Reuters&lt;/font&gt;</description></item>
<item><title>Second</title><link>https://news.example/2</link><description>plain</description></item>
</channel></rss>`

func TestFeedBackend_Search(t *testing.T) {
	http := &stubHTTP{body: newsFeed}
	b := NewFeedBackend(http, "https://news.google.com/rss/search", 5)

	hits, err := b.Search(context.Background(), "fusion energy")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Fusion milestone", hits[0].Title)
	assert.Equal(t, "https://news.example/fusion", hits[0].Link)
	assert.Equal(t, "Fusion milestone Reuters", hits[0].Snippet)

	u, err := url.Parse(http.url)
	require.NoError(t, err)
	assert.Equal(t, "news.google.com", u.Host)
	assert.Equal(t, "fusion energy", u.Query().Get("q"))
	assert.Equal(t, "US:en", u.Query().Get("ceid"))
}

func TestFeedBackend_MaxResults(t *testing.T) {
	hits, err := NewFeedBackend(&stubHTTP{body: newsFeed}, "https://n.example/rss", 1).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFeedBackend_DownloadError(t *testing.T) {
	_, err := NewFeedBackend(&stubHTTP{err: errors.New("refused")}, "https://n.example/rss", 5).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: news feed")
}

func TestFeedBackend_ParseError(t *testing.T) {
	_, err := NewFeedBackend(&stubHTTP{body: "nope"}, "https://n.example/rss", 5).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: parse news feed")
}
