// Package topic normalizes and validates subscriber topics.
package topic

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Verdict is the outcome of validating one topic.
type Verdict int

const (
	Invalid Verdict = iota
	Valid
)

func (v Verdict) String() string {
	if v == Valid {
		return "valid"
	}
	return "invalid"
}

// ValidToken is the only verdict reply accepted as Valid.
const ValidToken = "VALID"

// VerdictFunc asks a judge whether topic is meaningful and returns its raw
// reply token.
type VerdictFunc func(ctx context.Context, topic string) (string, error)

// Validator decides whether topics are meaningful.
type Validator struct {
	verdict VerdictFunc
	// MaxConcurrency bounds ValidateAll; zero means one goroutine per topic.
	MaxConcurrency int
}

// NewValidator creates a Validator backed by verdict.
func NewValidator(verdict VerdictFunc) *Validator {
	return &Validator{verdict: verdict}
}

// Validate returns Valid only when the judge replies with the exact token
// VALID after trimming and upper-casing. If the judge errors, topics longer
// than two characters are accepted.
func (v *Validator) Validate(ctx context.Context, topic string) Verdict {
	trimmed := strings.TrimSpace(topic)

	reply, err := v.verdict(ctx, trimmed)
	if err != nil {
		zap.L().Warn("topic: verdict unavailable, using length fallback",
			zap.String("topic", trimmed),
			zap.Error(err),
		)
		if len([]rune(trimmed)) > 2 {
			return Valid
		}
		return Invalid
	}

	if strings.ToUpper(strings.TrimSpace(reply)) == ValidToken {
		return Valid
	}
	return Invalid
}

// ValidateAll validates topics concurrently and returns the verdicts keyed by
// topic.
func (v *Validator) ValidateAll(ctx context.Context, topics []string) map[string]Verdict {
	out := make(map[string]Verdict, len(topics))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if v.MaxConcurrency > 0 {
		g.SetLimit(v.MaxConcurrency)
	}
	for _, t := range topics {
		g.Go(func() error {
			verdict := v.Validate(gctx, t)
			mu.Lock()
			out[t] = verdict
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// InvalidTopics returns, in input order, the topics whose verdict is not Valid.
func InvalidTopics(topics []string, verdicts map[string]Verdict) []string {
	var bad []string
	for _, t := range topics {
		if verdicts[t] != Valid {
			bad = append(bad, t)
		}
	}
	return bad
}

// Normalize trims each topic, drops empties and removes duplicates keeping
// the first occurrence. Topics are case-sensitive.
func Normalize(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Split turns a comma separated list into topics, normalized.
func Split(s string) []string {
	return Normalize(strings.Split(s, ","))
}
