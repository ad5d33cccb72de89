package topic

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func judge(replies map[string]string) VerdictFunc {
	return func(_ context.Context, topic string) (string, error) {
		if r, ok := replies[topic]; ok {
			return r, nil
		}
		return "INVALID", nil
	}
}

func TestValidate_Tokens(t *testing.T) {
	v := NewValidator(judge(map[string]string{
		"AI":        "VALID",
		"Climate":   "  valid\n",
		"asdf":      "INVALID",
		"Politics":  "VALID.",
		"Economics": "The topic is VALID",
	}))
	ctx := context.Background()

	assert.Equal(t, Valid, v.Validate(ctx, "AI"))
	assert.Equal(t, Valid, v.Validate(ctx, " Climate "))
	assert.Equal(t, Invalid, v.Validate(ctx, "asdf"))
	assert.Equal(t, Invalid, v.Validate(ctx, "Politics"))
	assert.Equal(t, Invalid, v.Validate(ctx, "Economics"))
}

func TestValidate_FallbackOnError(t *testing.T) {
	v := NewValidator(func(context.Context, string) (string, error) {
		return "", errors.New("judge down")
	})
	ctx := context.Background()

	assert.Equal(t, Valid, v.Validate(ctx, "Space"))
	assert.Equal(t, Valid, v.Validate(ctx, "abc"))
	assert.Equal(t, Invalid, v.Validate(ctx, "ab"))
	assert.Equal(t, Invalid, v.Validate(ctx, "  x  "))
}

func TestValidateAll(t *testing.T) {
	var calls atomic.Int32
	v := NewValidator(func(_ context.Context, topic string) (string, error) {
		calls.Add(1)
		if strings.HasPrefix(topic, "bad") {
			return "INVALID", nil
		}
		return "VALID", nil
	})

	topics := []string{"AI", "bad1", "Climate", "bad2"}
	verdicts := v.ValidateAll(context.Background(), topics)

	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, map[string]Verdict{
		"AI": Valid, "bad1": Invalid, "Climate": Valid, "bad2": Invalid,
	}, verdicts)
	assert.Equal(t, []string{"bad1", "bad2"}, InvalidTopics(topics, verdicts))
}

func TestValidateAll_Bounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	v := NewValidator(func(context.Context, string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		return "VALID", nil
	})
	v.MaxConcurrency = 2

	v.ValidateAll(context.Background(), []string{"a1", "a2", "a3", "a4", "a5"})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"AI", "Climate"}, Normalize([]string{"AI", "AI", "Climate"}))
	assert.Equal(t, []string{"AI", "ai"}, Normalize([]string{" AI ", "", "  ", "ai", "AI"}))
	assert.Empty(t, Normalize(nil))
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"AI", "Climate Change"}, Split("AI, Climate Change,, AI"))
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "valid", Valid.String())
	assert.Equal(t, "invalid", Invalid.String())
}
