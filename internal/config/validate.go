package config

import (
	"fmt"
	"strings"

	"github.com/sells-group/digest-cli/internal/model"
)

// Validate checks the settings the given command needs. Problems are
// reported together as a single config failure.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case "serve":
		require(c.Store.DatabaseURL, "store.database_url")
		require(c.Anthropic.Key, "anthropic.key")
		errs = append(errs, c.mailErrors()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "deliver":
		require(c.Store.DatabaseURL, "store.database_url")
		require(c.Anthropic.Key, "anthropic.key")
		errs = append(errs, c.searchErrors()...)
		errs = append(errs, c.mailErrors()...)
	case "research":
		require(c.Anthropic.Key, "anthropic.key")
		errs = append(errs, c.searchErrors()...)
	case "articles":
		require(c.Store.DatabaseURL, "store.database_url")
		require(c.Anthropic.Key, "anthropic.key")
	default:
		return model.NewFailure(model.KindConfig, fmt.Sprintf("unknown mode %q", mode), nil)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Delivery.MaxConcurrentUsers < 1 || c.Delivery.MaxConcurrentUsers > 50 {
		errs = append(errs, "delivery.max_concurrent_users must be between 1 and 50")
	}
	if c.Delivery.Window <= 0 {
		errs = append(errs, "delivery.window must be > 0")
	}
	if c.Subscription.MaxTopics < 1 {
		errs = append(errs, "subscription.max_topics must be >= 1")
	}
	if c.Summarize.MaxBatchTokens < 1 {
		errs = append(errs, "summarize.max_batch_tokens must be >= 1")
	}
	if c.Budget.MaxUSD < 0 {
		errs = append(errs, "budget.max_usd must be >= 0")
	}

	if len(errs) > 0 {
		return model.NewFailure(model.KindConfig, strings.Join(errs, "; "), nil)
	}
	return nil
}

func (c *Config) searchErrors() []string {
	switch c.Search.Provider {
	case "jina":
		if strings.TrimSpace(c.Jina.Key) == "" {
			return []string{"jina.key is required when search.provider is jina"}
		}
	case "rss":
		if strings.TrimSpace(c.Search.NewsFeedURL) == "" {
			return []string{"search.news_feed_url is required when search.provider is rss"}
		}
	default:
		return []string{fmt.Sprintf("search.provider %q must be jina or rss", c.Search.Provider)}
	}
	if len(c.Search.Passes) == 0 {
		return []string{"search.passes must not be empty"}
	}
	return nil
}

func (c *Config) mailErrors() []string {
	switch c.Mail.Provider {
	case "log":
		return nil
	case "mailjet":
		var errs []string
		if strings.TrimSpace(c.Mail.Mailjet.APIKey) == "" {
			errs = append(errs, "mail.mailjet.api_key is required")
		}
		if strings.TrimSpace(c.Mail.Mailjet.SecretKey) == "" {
			errs = append(errs, "mail.mailjet.secret_key is required")
		}
		if strings.TrimSpace(c.Mail.From) == "" {
			errs = append(errs, "mail.from is required")
		}
		return errs
	default:
		return []string{fmt.Sprintf("mail.provider %q must be mailjet or log", c.Mail.Provider)}
	}
}

// Credential describes one secret for the setup check.
type Credential struct {
	Key         string
	Set         bool
	Placeholder bool
}

// OK reports whether the credential is present and not a template value.
func (c Credential) OK() bool {
	return c.Set && !c.Placeholder
}

var placeholderPrefixes = []string{"your_", "your-", "<", "changeme", "xxx", "replace"}

// Credentials lists the secrets the service can use, with their status.
func (c *Config) Credentials() []Credential {
	pairs := []struct {
		key, value string
	}{
		{"anthropic.key", c.Anthropic.Key},
		{"jina.key", c.Jina.Key},
		{"mail.mailjet.api_key", c.Mail.Mailjet.APIKey},
		{"mail.mailjet.secret_key", c.Mail.Mailjet.SecretKey},
		{"mail.from", c.Mail.From},
		{"store.database_url", c.Store.DatabaseURL},
	}

	out := make([]Credential, 0, len(pairs))
	for _, p := range pairs {
		v := strings.ToLower(strings.TrimSpace(p.value))
		cred := Credential{Key: p.key, Set: v != ""}
		for _, prefix := range placeholderPrefixes {
			if strings.HasPrefix(v, prefix) {
				cred.Placeholder = true
				break
			}
		}
		out = append(out, cred)
	}
	return out
}
