package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/cost"
	"github.com/sells-group/digest-cli/internal/model"
)

const systemPrompt = `You are an expert intelligence analyst. Your task is to:
1. Identify key themes and narratives across the provided articles
2. Provide a high-level synthesis of the trend
3. List specific insights with source references
4. Highlight any contradictions or evolving perspectives

Format your response in Markdown with sections:
## Key Takeaways
## Detailed Analysis
## Source Summaries (with URLs)`

// promptChars is how much of each article body goes into the prompt.
const promptChars = 1500

// Completer is the synthesis backend.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Options tunes a Summarizer.
type Options struct {
	MaxBatchTokens  int
	MaxArticleChars int
	MaxOutputTokens int
}

// Summarizer produces briefings for groups of articles on one topic.
type Summarizer struct {
	synth     Completer
	guard     *cost.Guard
	tokenizer Tokenizer
	opts      Options
}

// New creates a Summarizer. guard may be nil.
func New(synth Completer, guard *cost.Guard, opts Options) *Summarizer {
	if opts.MaxBatchTokens <= 0 {
		opts.MaxBatchTokens = 15000
	}
	if opts.MaxArticleChars <= 0 {
		opts.MaxArticleChars = 2000
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 2000
	}
	return &Summarizer{synth: synth, guard: guard, tokenizer: CharTokenizer{}, opts: opts}
}

// ArticleTokens counts the title plus the leading body characters.
func (s *Summarizer) ArticleTokens(a model.Article) int {
	return s.tokenizer.Count(a.Title + "\n" + truncate(body(a), s.opts.MaxArticleChars))
}

// Batches groups articles by the configured token ceiling.
func (s *Summarizer) Batches(articles []model.Article) [][]model.Article {
	return Batch(articles, s.opts.MaxBatchTokens, s.ArticleTokens)
}

// Briefing is the summary of one batch together with the articles it covers.
type Briefing struct {
	Articles []model.Article
	Text     string
	Failed   bool
}

// ArticleIDs lists the IDs of the articles in the batch.
func (b Briefing) ArticleIDs() []string {
	ids := make([]string, 0, len(b.Articles))
	for _, a := range b.Articles {
		ids = append(ids, a.ID)
	}
	return ids
}

// Summarize returns one briefing per batch. Failed batches yield an error
// section instead of aborting the rest.
func (s *Summarizer) Summarize(ctx context.Context, topic string, articles []model.Article) []Briefing {
	batches := s.Batches(articles)
	out := make([]Briefing, 0, len(batches))
	for i, batch := range batches {
		zap.L().Debug("summarize: batch",
			zap.String("topic", topic),
			zap.Int("batch", i+1),
			zap.Int("articles", len(batch)),
		)
		text := s.SummarizeBatch(ctx, topic, batch)
		out = append(out, Briefing{Articles: batch, Text: text, Failed: IsErrorSection(text)})
	}
	return out
}

// SummarizeBatch briefs one batch. It never returns an empty string.
func (s *Summarizer) SummarizeBatch(ctx context.Context, topic string, batch []model.Article) string {
	user := buildPrompt(topic, batch)

	if s.guard != nil {
		estimate := s.guard.Estimate(s.tokenizer.Count(systemPrompt+user), s.opts.MaxOutputTokens)
		if !s.guard.Admit(estimate) {
			return errorSection(eris.Errorf("budget exceeded: estimated $%.4f", estimate))
		}
	}

	text, err := s.synth.Complete(ctx, systemPrompt, user)
	if err != nil {
		zap.L().Warn("summarize: batch failed", zap.String("topic", topic), zap.Error(err))
		return errorSection(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errorSection(eris.New("empty reply"))
	}
	return text
}

func buildPrompt(topic string, batch []model.Article) string {
	parts := make([]string, 0, len(batch))
	for _, a := range batch {
		parts = append(parts, fmt.Sprintf("Source: %s\nURL: %s\nTitle: %s\nContent: %s",
			a.SourceName, a.Link, a.Title, truncate(body(a), promptChars)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	fmt.Fprintf(&b, "Here are %d recent articles on this topic:\n\n", len(batch))
	b.WriteString(strings.Join(parts, "\n\n---\n\n"))
	b.WriteString("\n\nPlease provide a comprehensive briefing.")
	return b.String()
}

const errorHeading = "## Summarization Error"

func errorSection(err error) string {
	return errorHeading + "\n\nFailed to summarize: " + err.Error()
}

// IsErrorSection reports whether briefing is a failed batch placeholder.
func IsErrorSection(briefing string) bool {
	return strings.HasPrefix(briefing, errorHeading)
}

func body(a model.Article) string {
	if a.FullText != "" {
		return a.FullText
	}
	return a.Summary
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
