package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "digest.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "jina", cfg.Search.Provider)
	assert.Equal(t, []string{"{topic} news {year}", "{topic} analysis opinion"}, cfg.Search.Passes)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, "log", cfg.Mail.Provider)
	assert.Equal(t, 10*time.Minute, cfg.Subscription.OTPTTL)
	assert.Equal(t, 3, cfg.Subscription.MaxTopics)
	assert.Equal(t, 24*time.Hour, cfg.Delivery.Window)
	assert.Equal(t, 30*time.Minute, cfg.Delivery.Lease)
	assert.Equal(t, 4, cfg.Delivery.MaxConcurrentUsers)
	assert.Equal(t, 8000, cfg.Summarize.MaxBatchTokens)
	assert.InDelta(t, 0.15, cfg.Pricing.Default.Input, 0.0001)
	assert.InDelta(t, 0.60, cfg.Pricing.Default.Output, 0.0001)
	assert.InDelta(t, 1.0, cfg.Budget.MaxUSD, 0.0001)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.0001)
	assert.Equal(t, 5, cfg.Monitoring.MinDeliveries)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/digest
log:
  level: debug
  format: console
delivery:
  window: 12h
  max_concurrent_users: 8
pricing:
  anthropic:
    claude-sonnet-4-5:
      input: 3
      output: 15
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 12*time.Hour, cfg.Delivery.Window)
	assert.Equal(t, 8, cfg.Delivery.MaxConcurrentUsers)
	assert.InDelta(t, 15.0, cfg.Pricing.Anthropic["claude-sonnet-4-5"].Output, 0.0001)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Subscription.MaxTopics)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DIGEST_STORE_DRIVER", "postgres")
	t.Setenv("DIGEST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DIGEST_ANTHROPIC_KEY=sk-from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("DIGEST_ANTHROPIC_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", cfg.Anthropic.Key)
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DIGEST_ANTHROPIC_KEY", "sk-ant")
	t.Setenv("DIGEST_ANTHROPIC_BASE_URL", "http://llm.local")
	t.Setenv("DIGEST_JINA_KEY", "jina-key")
	t.Setenv("DIGEST_MAIL_FROM", "digest@example.com")
	t.Setenv("DIGEST_MAIL_MAILJET_API_KEY", "mj-key")
	t.Setenv("DIGEST_MAIL_MAILJET_SECRET_KEY", "mj-secret")
	t.Setenv("DIGEST_MONITORING_WEBHOOK_URL", "http://hooks.local/alerts")
	t.Setenv("DIGEST_MONITORING_COST_THRESHOLD_USD", "2.5")
	t.Setenv("DIGEST_MAIL_PROVIDER", "mailjet")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-ant", cfg.Anthropic.Key)
	assert.Equal(t, "http://llm.local", cfg.Anthropic.BaseURL)
	assert.Equal(t, "jina-key", cfg.Jina.Key)
	assert.Equal(t, "digest@example.com", cfg.Mail.From)
	assert.Equal(t, "mj-key", cfg.Mail.Mailjet.APIKey)
	assert.Equal(t, "mj-secret", cfg.Mail.Mailjet.SecretKey)
	assert.Equal(t, "http://hooks.local/alerts", cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 2.5, cfg.Monitoring.CostThresholdUSD, 1e-9)

	require.NoError(t, cfg.Validate("deliver"))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults Load would set.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "digest.db"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Search.Provider = "jina"
	cfg.Search.Passes = []string{"{topic} news {year}"}
	cfg.Jina.Key = "jina-key"
	cfg.Mail.Provider = "log"
	cfg.Subscription.MaxTopics = 3
	cfg.Delivery.Window = 24 * time.Hour
	cfg.Delivery.MaxConcurrentUsers = 4
	cfg.Summarize.MaxBatchTokens = 8000
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "deliver", "research", "articles"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingCredentialsIsConfigFailure(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Jina.Key = ""

	err := cfg.Validate("deliver")
	require.Error(t, err)
	assert.Equal(t, model.KindConfig, model.KindOf(err))
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "jina.key is required")
}

func TestValidate_Mailjet(t *testing.T) {
	cfg := validDefaults()
	cfg.Mail.Provider = "mailjet"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail.mailjet.api_key is required")
	assert.Contains(t, err.Error(), "mail.from is required")

	cfg.Mail.Mailjet.APIKey = "k"
	cfg.Mail.Mailjet.SecretKey = "s"
	cfg.Mail.From = "digest@example.com"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_RSSNeedsNoKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Search.Provider = "rss"
	cfg.Search.NewsFeedURL = "https://news.google.com/rss/search"
	cfg.Jina.Key = ""
	assert.NoError(t, cfg.Validate("research"))
}

func TestValidate_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Delivery.MaxConcurrentUsers = 0
	err := cfg.Validate("deliver")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.max_concurrent_users must be between 1 and 50")

	cfg.Delivery.MaxConcurrentUsers = 4
	cfg.Server.Port = 0
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestCredentials(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "your_anthropic_key_here"
	cfg.Jina.Key = ""

	creds := map[string]Credential{}
	for _, c := range cfg.Credentials() {
		creds[c.Key] = c
	}

	assert.True(t, creds["anthropic.key"].Set)
	assert.True(t, creds["anthropic.key"].Placeholder)
	assert.False(t, creds["anthropic.key"].OK())
	assert.False(t, creds["jina.key"].Set)
	assert.True(t, creds["store.database_url"].OK())
}
