// Package feed ingests RSS and Atom news feeds into article records.
package feed

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/fetcher"
	"github.com/sells-group/digest-cli/internal/model"
)

// Defaults for Options.
const (
	DefaultMaxEntries = 10
	unknownSource     = "Unknown"
)

// TextSource extracts readable text for an article link. scrape.Chain
// satisfies it.
type TextSource interface {
	Text(ctx context.Context, url string) string
}

// Options tunes a Fetcher.
type Options struct {
	// MaxEntries caps the entries taken from one feed.
	MaxEntries int
	// Now stamps ProcessedAt. Defaults to time.Now.
	Now func() time.Time
}

// Fetcher downloads feeds and turns their entries into articles.
type Fetcher struct {
	http   fetcher.Fetcher
	text   TextSource
	parser *gofeed.Parser
	opts   Options

	mu    sync.Mutex
	etags map[string]string
}

// New creates a Fetcher. text may be nil when full-text extraction is not
// wanted.
func New(http fetcher.Fetcher, text TextSource, opts Options) *Fetcher {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{
		http:   http,
		text:   text,
		parser: gofeed.NewParser(),
		opts:   opts,
		etags:  make(map[string]string),
	}
}

// FetchFeed downloads feedURL and returns up to MaxEntries articles tagged
// with topic. A feed unchanged since the last call (by ETag) yields no
// articles.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL, topic string) ([]model.Article, error) {
	f.mu.Lock()
	etag := f.etags[feedURL]
	f.mu.Unlock()

	body, newETag, changed, err := f.http.DownloadIfChanged(ctx, feedURL, etag)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: fetch %s", feedURL)
	}
	if !changed {
		zap.L().Debug("feed: not modified", zap.String("url", feedURL))
		return nil, nil
	}

	articles, err := f.Parse(body, topic)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: parse %s", feedURL)
	}

	if newETag != "" {
		f.mu.Lock()
		f.etags[feedURL] = newETag
		f.mu.Unlock()
	}
	return articles, nil
}

// Parse converts a feed document into articles.
func (f *Fetcher) Parse(body []byte, topic string) ([]model.Article, error) {
	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(parsed.Title)
	if source == "" {
		source = unknownSource
	}
	now := f.opts.Now().UTC()

	items := parsed.Items
	if len(items) > f.opts.MaxEntries {
		items = items[:f.opts.MaxEntries]
	}

	articles := make([]model.Article, 0, len(items))
	for _, item := range items {
		a := model.Article{
			ID:          ArticleID(item),
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Summary:     strings.TrimSpace(item.Description),
			SourceName:  source,
			Topic:       topic,
			ProcessedAt: now,
		}
		if item.PublishedParsed != nil {
			p := item.PublishedParsed.UTC()
			a.Published = &p
		} else if item.UpdatedParsed != nil {
			p := item.UpdatedParsed.UTC()
			a.Published = &p
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// ArticleID is the entry GUID, else its link, else a name-based UUID of the
// title so re-fetching the same entry gives the same ID.
func ArticleID(item *gofeed.Item) string {
	if id := strings.TrimSpace(item.GUID); id != "" {
		return id
	}
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(item.Title+"|"+item.Published)).String()
}

// FetchFullContent returns the readable text behind link, or "" when it
// cannot be extracted.
func (f *Fetcher) FetchFullContent(ctx context.Context, link string) string {
	if f.text == nil || link == "" {
		return ""
	}
	return f.text.Text(ctx, link)
}
