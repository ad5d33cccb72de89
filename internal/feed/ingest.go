package feed

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/digest-cli/internal/model"
)

// ArticleStore is the article cache used by Ingest.
type ArticleStore interface {
	ArticleExists(ctx context.Context, id string) (bool, error)
	InsertArticle(ctx context.Context, a model.Article) (bool, error)
}

// IngestReport counts what one Ingest call did.
type IngestReport struct {
	Feeds    int
	Failed   int
	Fetched  int
	Inserted int
}

// Ingest fetches every feed for topic, extracts full text for articles not
// yet cached and inserts them. A feed that fails to download is counted and
// skipped; a store error aborts.
func (f *Fetcher) Ingest(ctx context.Context, st ArticleStore, topic string, feeds []string, maxConcurrent int) (IngestReport, error) {
	var (
		mu     sync.Mutex
		report = IngestReport{Feeds: len(feeds)}
	)

	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}

	for _, feedURL := range feeds {
		g.Go(func() error {
			articles, err := f.FetchFeed(gctx, feedURL, topic)
			if err != nil {
				failure := model.NewFailure(model.KindTransientFetch, feedURL, err)
				zap.L().Warn("feed: skipping feed", zap.String("topic", topic), zap.Error(failure))
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}

			inserted := 0
			for _, a := range articles {
				exists, err := st.ArticleExists(gctx, a.ID)
				if err != nil {
					return eris.Wrapf(err, "feed: check article %s", a.ID)
				}
				if exists {
					continue
				}
				a.FullText = f.FetchFullContent(gctx, a.Link)
				ok, err := st.InsertArticle(gctx, a)
				if err != nil {
					return eris.Wrapf(err, "feed: insert article %s", a.ID)
				}
				if ok {
					inserted++
				}
			}

			mu.Lock()
			report.Fetched += len(articles)
			report.Inserted += inserted
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	zap.L().Info("feed: ingest complete",
		zap.String("topic", topic),
		zap.Int("feeds", report.Feeds),
		zap.Int("failed", report.Failed),
		zap.Int("fetched", report.Fetched),
		zap.Int("inserted", report.Inserted),
	)
	return report, nil
}
