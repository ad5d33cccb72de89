package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// minReadableChars is the shortest readability output trusted as the
// article body; anything shorter falls back to container extraction.
const minReadableChars = 100

// fallbackSelectors are tried in order when readability finds nothing.
var fallbackSelectors = []string{"article", "main", "body"}

// LocalScraper fetches HTML via net/http and extracts the article body with
// readability, falling back to the first article/main/body container.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper. A nil client gets sensible
// timeouts.
func NewLocalScraper(client *http.Client) *LocalScraper {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &LocalScraper{client: client}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks and extracts readable text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; DigestBot/1.0)")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	title, text := Extract(body, resp.Request.URL)
	if text == "" {
		return nil, eris.New("local_http: no readable content")
	}

	return &Result{
		Page:   Page{URL: targetURL, Title: title, Text: text},
		Source: "local_http",
	}, nil
}

// Extract returns the title and readable text of an HTML document.
func Extract(body []byte, pageURL *url.URL) (string, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	doc.Find("script, style, noscript, nav, footer, aside").Remove()
	title := strings.TrimSpace(doc.Find("title").First().Text())

	if text := readable(body, pageURL); len(text) >= minReadableChars {
		return title, text
	}

	for _, sel := range fallbackSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := collapseWhitespace(blockText(node)); text != "" {
			return title, text
		}
	}
	return title, ""
}

func readable(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		zap.L().Debug("scrape: readability failed", zap.Error(err))
		return ""
	}
	var buf strings.Builder
	if err := article.RenderText(&buf); err != nil {
		return ""
	}
	return collapseWhitespace(buf.String())
}

// blockText renders block children on separate paragraphs so headings and
// paragraphs don't run together.
func blockText(sel *goquery.Selection) string {
	blocks := sel.Find("h1, h2, h3, h4, p, li, blockquote, pre")
	if blocks.Length() == 0 {
		return sel.Text()
	}
	parts := make([]string, 0, blocks.Length())
	blocks.Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.Join(parts, "\n\n")
}
