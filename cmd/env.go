package main

import (
	"context"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/digest-cli/internal/config"
	"github.com/sells-group/digest-cli/internal/cost"
	"github.com/sells-group/digest-cli/internal/delivery"
	"github.com/sells-group/digest-cli/internal/feed"
	"github.com/sells-group/digest-cli/internal/fetcher"
	"github.com/sells-group/digest-cli/internal/llm"
	"github.com/sells-group/digest-cli/internal/mail"
	"github.com/sells-group/digest-cli/internal/monitoring"
	"github.com/sells-group/digest-cli/internal/pipeline"
	"github.com/sells-group/digest-cli/internal/scrape"
	"github.com/sells-group/digest-cli/internal/search"
	"github.com/sells-group/digest-cli/internal/store"
	"github.com/sells-group/digest-cli/internal/subscription"
	"github.com/sells-group/digest-cli/internal/summarize"
	"github.com/sells-group/digest-cli/internal/topic"
	anthropicpkg "github.com/sells-group/digest-cli/pkg/anthropic"
	"github.com/sells-group/digest-cli/pkg/jina"
	"github.com/sells-group/digest-cli/pkg/mailjet"
)

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{MaxConns: c.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func costRates(c *config.Config) cost.Rates {
	rates := cost.DefaultRates()
	for name, p := range c.Pricing.Anthropic {
		rates.Models[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	if c.Pricing.Default.Input > 0 || c.Pricing.Default.Output > 0 {
		rates.Default = cost.ModelRate{Input: c.Pricing.Default.Input, Output: c.Pricing.Default.Output}
	}
	return rates
}

// initSynthesizer builds the Anthropic-backed synthesizer and the spend guard
// shared by every synthesis call in the process.
func initSynthesizer(c *config.Config) (*llm.Synthesizer, *cost.Guard) {
	var opts []option.RequestOption
	if c.Anthropic.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.Anthropic.BaseURL))
	}
	client := anthropicpkg.NewClient(c.Anthropic.Key, opts...)

	calc := cost.NewCalculator(costRates(c))
	synth := llm.New(client, calc, llm.Options{
		Model:       c.Anthropic.Model,
		MaxTokens:   c.Anthropic.MaxTokens,
		Temperature: c.Anthropic.Temperature,
	})
	return synth, cost.NewGuard(calc, c.Anthropic.Model, c.Budget.MaxUSD)
}

func initJina(c *config.Config) jina.Client {
	opts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	return jina.NewClient(c.Jina.Key, opts...)
}

func initFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		DefaultRate: rate.Limit(c.Search.RatePerSecond),
	})
}

// initSearch selects the web search backend.
func initSearch(c *config.Config) (pipeline.Searcher, error) {
	switch c.Search.Provider {
	case "jina":
		return search.NewJinaBackend(initJina(c), c.Search.RatePerSecond, c.Search.MaxResults), nil
	case "rss":
		return search.NewFeedBackend(initFetcher(c), c.Search.NewsFeedURL, c.Search.MaxResults), nil
	default:
		return nil, eris.Errorf("unsupported search provider: %s", c.Search.Provider)
	}
}

// initPipeline builds the research pipeline for the configured backends and
// returns the spend guard it shares.
func initPipeline(c *config.Config) (*pipeline.Pipeline, *cost.Guard, error) {
	backend, err := initSearch(c)
	if err != nil {
		return nil, nil, err
	}
	synth, guard := initSynthesizer(c)
	p := pipeline.New(backend, synth, guard, pipeline.Config{
		Passes:          c.Search.Passes,
		MaxOutputTokens: int(c.Anthropic.MaxTokens),
	})
	return p, guard, nil
}

// initSender selects the mail provider.
func initSender(c *config.Config) (mail.Sender, error) {
	switch c.Mail.Provider {
	case "mailjet":
		client := mailjet.NewClient(c.Mail.Mailjet.APIKey, c.Mail.Mailjet.SecretKey,
			mailjet.WithBaseURL(c.Mail.Mailjet.BaseURL))
		return mail.NewMailjetSender(client, c.Mail.From, c.Mail.FromName), nil
	case "log":
		zap.L().Warn("mail provider is log, messages will not leave this process")
		return mail.LogSender{}, nil
	default:
		return nil, eris.Errorf("unsupported mail provider: %s", c.Mail.Provider)
	}
}

// initService wires the subscription flow.
func initService(c *config.Config, st store.Store, synth *llm.Synthesizer, sender mail.Sender) *subscription.Service {
	machine := subscription.NewMachine(st, c.Subscription.OTPTTL)
	return subscription.NewService(machine, topic.NewValidator(synth.Verdict), sender, c.Subscription.MaxTopics)
}

// initScheduler wires the digest scheduler.
func initScheduler(c *config.Config, st store.Store, research delivery.Researcher, sender mail.Sender) *delivery.Scheduler {
	return delivery.New(st, research, sender, delivery.NewRenderer(""), delivery.Config{
		Window:             c.Delivery.Window,
		Lease:              c.Delivery.Lease,
		MaxConcurrentUsers: c.Delivery.MaxConcurrentUsers,
		Subject:            c.Delivery.Subject,
		BreakerThreshold:   c.Mail.BreakerThreshold,
		BreakerCooldown:    c.Mail.BreakerCooldown,
	})
}

// initMonitoring wraps a scheduler so every pass is checked for alerts.
func initMonitoring(c *config.Config, sched *delivery.Scheduler, guard *cost.Guard) *monitoring.Checker {
	return monitoring.NewChecker(sched, monitoring.NewCollector(guard), monitoring.NewAlerter(c.Monitoring))
}

// initFeeds builds the RSS fetcher with a full-text chain of the local
// readability scraper and the Jina reader.
func initFeeds(c *config.Config) *feed.Fetcher {
	chain := scrape.NewChain(c.Summarize.MaxFullTextChars,
		scrape.NewLocalScraper(&http.Client{Timeout: 20 * time.Second}),
		scrape.NewJinaAdapter(initJina(c)),
	)
	return feed.New(initFetcher(c), chain, feed.Options{MaxEntries: c.Summarize.MaxEntriesPerFeed})
}

func initSummarizer(c *config.Config, synth *llm.Synthesizer, guard *cost.Guard) *summarize.Summarizer {
	return summarize.New(synth, guard, summarize.Options{
		MaxBatchTokens:  c.Summarize.MaxBatchTokens,
		MaxArticleChars: c.Summarize.MaxArticleChars,
		MaxOutputTokens: int(c.Anthropic.MaxTokens),
	})
}
