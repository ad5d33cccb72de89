package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/feed"
	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/summarize"
)

var (
	articlesFile          string
	articlesLimit         int
	articlesConcurrency   int
	articlesSkipSummarize bool
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Ingest RSS feeds and summarize new articles per topic",
	Long:  "Fetches the feeds listed per topic in the topics file, caches new articles, and prints a batched briefing for articles not yet summarized.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("articles"); err != nil {
			return err
		}

		path := articlesFile
		if path == "" {
			path = cfg.Research.TopicsFile
		}
		tf, err := loadTopicsFile(path)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		synth, guard := initSynthesizer(cfg)
		job := &articlesJob{
			feeds:      initFeeds(cfg),
			store:      st,
			summarizer: initSummarizer(cfg, synth, guard),
			limit:      articlesLimit,
			concurrent: articlesConcurrency,
			summarize:  !articlesSkipSummarize,
			out:        cmd.OutOrStdout(),
		}
		return job.run(ctx, tf)
	},
}

func init() {
	articlesCmd.Flags().StringVar(&articlesFile, "file", "", "topics file (default research.topics_file)")
	articlesCmd.Flags().IntVar(&articlesLimit, "limit", 100, "max unsummarized articles per topic")
	articlesCmd.Flags().IntVar(&articlesConcurrency, "concurrency", 4, "feeds fetched in parallel")
	articlesCmd.Flags().BoolVar(&articlesSkipSummarize, "ingest-only", false, "cache articles without summarizing")
	rootCmd.AddCommand(articlesCmd)
}

// articleStore is the store surface the articles job needs.
type articleStore interface {
	feed.ArticleStore
	ListUnsummarized(ctx context.Context, topic string, limit int) ([]model.Article, error)
	MarkArticlesSummarized(ctx context.Context, ids []string) error
}

type articlesJob struct {
	feeds      *feed.Fetcher
	store      articleStore
	summarizer *summarize.Summarizer
	limit      int
	concurrent int
	summarize  bool
	out        io.Writer
}

// run ingests and summarizes each topic in file order. Topics without feeds
// are skipped. Only store errors abort.
func (j *articlesJob) run(ctx context.Context, tf *topicsFile) error {
	for _, t := range tf.Topics {
		feeds := tf.Feeds[t]
		if len(feeds) == 0 {
			zap.L().Info("articles: no feeds for topic", zap.String("topic", t))
			continue
		}

		report, err := j.feeds.Ingest(ctx, j.store, t, feeds, j.concurrent)
		if err != nil {
			return err
		}
		zap.L().Info("articles: ingested",
			zap.String("topic", t),
			zap.Int("feeds", report.Feeds),
			zap.Int("failed", report.Failed),
			zap.Int("fetched", report.Fetched),
			zap.Int("inserted", report.Inserted),
		)

		if !j.summarize {
			continue
		}
		if err := j.summarizeTopic(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// summarizeTopic briefs pending articles batch by batch. Articles in a batch
// that failed stay pending for the next run.
func (j *articlesJob) summarizeTopic(ctx context.Context, topic string) error {
	pending, err := j.store.ListUnsummarized(ctx, topic, j.limit)
	if err != nil {
		return eris.Wrapf(err, "articles: list pending for %q", topic)
	}
	if len(pending) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(j.out, "# %s\n\n", topic); err != nil {
		return err
	}
	for _, b := range j.summarizer.Summarize(ctx, topic, pending) {
		if _, err := fmt.Fprintf(j.out, "%s\n\n", b.Text); err != nil {
			return err
		}
		if b.Failed {
			continue
		}
		if err := j.store.MarkArticlesSummarized(ctx, b.ArticleIDs()); err != nil {
			return eris.Wrapf(err, "articles: mark summarized for %q", topic)
		}
	}
	return nil
}
