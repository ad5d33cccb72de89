// Package llm adapts the Anthropic client to the synthesis and topic
// verdict roles used by the digest pipeline.
package llm

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/cost"
	"github.com/sells-group/digest-cli/pkg/anthropic"
)

// VerdictPrompt asks for a one-token VALID or INVALID reply.
const VerdictPrompt = "Is the text '%s' a valid, meaningful topic for news research? Respond with only 'VALID' or 'INVALID'."

const verdictMaxTokens = 10

// Options configures a Synthesizer.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Synthesizer sends prompts to Anthropic and logs what each call cost.
type Synthesizer struct {
	client anthropic.Client
	calc   *cost.Calculator
	opts   Options
}

// New creates a Synthesizer. calc may be nil to skip cost logging.
func New(client anthropic.Client, calc *cost.Calculator, opts Options) *Synthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Synthesizer{client: client, calc: calc, opts: opts}
}

// Complete returns the model's text reply to user under the system
// instruction.
func (s *Synthesizer) Complete(ctx context.Context, system, user string) (string, error) {
	return s.send(ctx, system, user, s.opts.MaxTokens, s.opts.Temperature)
}

// Verdict asks the model whether topic is meaningful and returns the raw
// reply. It satisfies topic.VerdictFunc.
func (s *Synthesizer) Verdict(ctx context.Context, topic string) (string, error) {
	return s.send(ctx, "", fmt.Sprintf(VerdictPrompt, topic), verdictMaxTokens, 0)
}

func (s *Synthesizer) send(ctx context.Context, system, user string, maxTokens int64, temperature float64) (string, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.opts.Model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temperature,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: complete")
	}

	fields := []zap.Field{
		zap.String("model", s.opts.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", resp.StopReason),
	}
	if s.calc != nil {
		fields = append(fields, zap.Float64("cost_usd",
			s.calc.Tokens(s.opts.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))))
	}
	zap.L().Debug("llm: message complete", fields...)

	return resp.Text(), nil
}
