package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Jina         JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Mail         MailConfig         `yaml:"mail" mapstructure:"mail"`
	Subscription SubscriptionConfig `yaml:"subscription" mapstructure:"subscription"`
	Delivery     DeliveryConfig     `yaml:"delivery" mapstructure:"delivery"`
	Summarize    SummarizeConfig    `yaml:"summarize" mapstructure:"summarize"`
	Research     ResearchConfig     `yaml:"research" mapstructure:"research"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
	Budget       BudgetConfig       `yaml:"budget" mapstructure:"budget"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// SearchConfig selects the web search backend and the research passes.
// Pass templates may use {topic} and {year}.
type SearchConfig struct {
	Provider      string   `yaml:"provider" mapstructure:"provider"`
	Passes        []string `yaml:"passes" mapstructure:"passes"`
	MaxResults    int      `yaml:"max_results" mapstructure:"max_results"`
	RatePerSecond float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	NewsFeedURL   string   `yaml:"news_feed_url" mapstructure:"news_feed_url"`
}

// JinaConfig holds Jina AI search and reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// MailConfig selects the mail provider.
type MailConfig struct {
	Provider string        `yaml:"provider" mapstructure:"provider"`
	From     string        `yaml:"from" mapstructure:"from"`
	FromName string        `yaml:"from_name" mapstructure:"from_name"`
	Mailjet  MailjetConfig `yaml:"mailjet" mapstructure:"mailjet"`
	// BreakerThreshold consecutive send failures open the mail circuit.
	BreakerThreshold int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// MailjetConfig holds Mailjet v3.1 credentials.
type MailjetConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// SubscriptionConfig controls the OTP flow.
type SubscriptionConfig struct {
	OTPTTL    time.Duration `yaml:"otp_ttl" mapstructure:"otp_ttl"`
	MaxTopics int           `yaml:"max_topics" mapstructure:"max_topics"`
}

// DeliveryConfig controls the digest scheduler.
type DeliveryConfig struct {
	Window             time.Duration `yaml:"window" mapstructure:"window"`
	Lease              time.Duration `yaml:"lease" mapstructure:"lease"`
	MaxConcurrentUsers int           `yaml:"max_concurrent_users" mapstructure:"max_concurrent_users"`
	Interval           time.Duration `yaml:"interval" mapstructure:"interval"`
	Subject            string        `yaml:"subject" mapstructure:"subject"`
}

// SummarizeConfig controls article batching.
type SummarizeConfig struct {
	MaxBatchTokens    int `yaml:"max_batch_tokens" mapstructure:"max_batch_tokens"`
	MaxArticleChars   int `yaml:"max_article_chars" mapstructure:"max_article_chars"`
	MaxFullTextChars  int `yaml:"max_full_text_chars" mapstructure:"max_full_text_chars"`
	MaxEntriesPerFeed int `yaml:"max_entries_per_feed" mapstructure:"max_entries_per_feed"`
}

// ResearchConfig configures the one-shot research command.
type ResearchConfig struct {
	TopicsFile string `yaml:"topics_file" mapstructure:"topics_file"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Default   ModelPricing            `yaml:"default" mapstructure:"default"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// BudgetConfig caps synthesis spend for the lifetime of the process.
type BudgetConfig struct {
	MaxUSD float64 `yaml:"max_usd" mapstructure:"max_usd"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures alerting on delivery passes.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// MinDeliveries is how many attempted sends a pass needs before its
	// failure rate is judged.
	MinDeliveries    int     `yaml:"min_deliveries" mapstructure:"min_deliveries"`
	CostThresholdUSD float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envOnlyKeys have no default and are usually supplied through DIGEST_* env
// vars or .env.
var envOnlyKeys = []string{
	"anthropic.key",
	"anthropic.base_url",
	"jina.key",
	"mail.from",
	"mail.mailjet.api_key",
	"mail.mailjet.secret_key",
	"monitoring.webhook_url",
	"monitoring.cost_threshold_usd",
}

// Load reads .env, config.yaml and DIGEST_* environment variables, in
// increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows, so keys without
	// a default are bound explicitly.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "digest.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("search.provider", "jina")
	v.SetDefault("search.passes", []string{"{topic} news {year}", "{topic} analysis opinion"})
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.rate_per_second", 2.0)
	v.SetDefault("search.news_feed_url", "https://news.google.com/rss/search")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.from_name", "AI Research Digest")
	v.SetDefault("mail.mailjet.base_url", "https://api.mailjet.com")
	v.SetDefault("mail.breaker_threshold", 3)
	v.SetDefault("mail.breaker_cooldown", "5m")
	v.SetDefault("subscription.otp_ttl", "10m")
	v.SetDefault("subscription.max_topics", 3)
	v.SetDefault("delivery.window", "24h")
	v.SetDefault("delivery.lease", "30m")
	v.SetDefault("delivery.max_concurrent_users", 4)
	v.SetDefault("delivery.interval", "1h")
	v.SetDefault("delivery.subject", "Your AI Research Digest")
	v.SetDefault("summarize.max_batch_tokens", 8000)
	v.SetDefault("summarize.max_article_chars", 2000)
	v.SetDefault("summarize.max_full_text_chars", 5000)
	v.SetDefault("summarize.max_entries_per_feed", 10)
	v.SetDefault("research.topics_file", "topics.yaml")
	v.SetDefault("pricing.default.input", 0.15)
	v.SetDefault("pricing.default.output", 0.60)
	v.SetDefault("budget.max_usd", 1.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_deliveries", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
