// Package pipeline researches one topic through a fixed sequence of stages
// and accumulates the findings into a summary.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/digest-cli/internal/cost"
	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/summarize"
)

// SystemPrompt is the fixed instruction for the Writing stage.
const SystemPrompt = "You are an expert news analyst. Synthesize the provided research context into a concise daily briefing in Markdown. Lead with the most important development and cite sources by URL where relevant."

// DefaultPasses are the research queries run for every topic.
var DefaultPasses = []string{"{topic} news {year}", "{topic} analysis opinion"}

// Searcher returns search hits for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// Synthesizer turns a system instruction and a user prompt into text.
type Synthesizer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Stage is a step of a pipeline run.
type Stage int

const (
	StagePlanning Stage = iota
	StageResearching
	StageWriting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StagePlanning:
		return "planning"
	case StageResearching:
		return "researching"
	case StageWriting:
		return "writing"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// StageResult is what a stage hands back: the state update plus any failures
// it absorbed.
type StageResult struct {
	Stage    Stage
	Update   Update
	Failures []*model.Failure
}

// Result is the outcome of a full run.
type Result struct {
	State    AgentState
	Failures []*model.Failure
}

// Config tunes a Pipeline.
type Config struct {
	// Passes are query templates; {topic} and {year} are substituted.
	Passes []string
	// MaxOutputTokens is the output allowance priced by the cost guard.
	MaxOutputTokens int
	// Now is the clock used for {year}. Defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs Planning, Researching and Writing for a topic.
type Pipeline struct {
	search    Searcher
	synth     Synthesizer
	guard     *cost.Guard
	tokenizer summarize.Tokenizer
	cfg       Config
}

// New creates a Pipeline. guard may be nil to disable spend checks.
func New(search Searcher, synth Synthesizer, guard *cost.Guard, cfg Config) *Pipeline {
	if len(cfg.Passes) == 0 {
		cfg.Passes = DefaultPasses
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2048
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		search:    search,
		synth:     synth,
		guard:     guard,
		tokenizer: summarize.CharTokenizer{},
		cfg:       cfg,
	}
}

// Run researches topic. The returned summary is never empty: synthesis
// problems are recorded as an "## Error" block and in Result.Failures.
func (p *Pipeline) Run(ctx context.Context, topic string) (*Result, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, model.NewFailure(model.KindValidation, "empty topic", nil)
	}

	log := zap.L().With(zap.String("topic", topic))
	log.Info("pipeline: starting research")
	start := time.Now()

	acc := NewAccumulator(topic)
	var failures []*model.Failure

	for stage := StagePlanning; stage < StageDone; stage++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s", stage)
		}

		var res StageResult
		switch stage {
		case StagePlanning:
			res = p.plan(topic)
		case StageResearching:
			res = p.research(ctx, topic)
		case StageWriting:
			res = p.write(ctx, acc.State())
		}

		acc.Apply(res.Update)
		for _, f := range res.Failures {
			log.Warn("pipeline: absorbed failure",
				zap.String("stage", stage.String()),
				zap.String("kind", string(f.Kind)),
				zap.Error(f),
			)
		}
		failures = append(failures, res.Failures...)
	}

	state := acc.State()
	log.Info("pipeline: research complete",
		zap.Int("results", len(state.ResearchResults)),
		zap.Int("sources", len(state.Sources)),
		zap.Int("failures", len(failures)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Result{State: state, Failures: failures}, nil
}

func (p *Pipeline) plan(topic string) StageResult {
	return StageResult{
		Stage:  StagePlanning,
		Update: Update{Messages: []string{"Researching " + topic}},
	}
}

// Queries expands the configured passes for topic.
func (p *Pipeline) Queries(topic string) []string {
	year := strconv.Itoa(p.cfg.Now().UTC().Year())
	r := strings.NewReplacer("{topic}", topic, "{year}", year)

	queries := make([]string, 0, len(p.cfg.Passes))
	for _, pass := range p.cfg.Passes {
		queries = append(queries, strings.TrimSpace(r.Replace(pass)))
	}
	return queries
}

func (p *Pipeline) research(ctx context.Context, topic string) StageResult {
	queries := p.Queries(topic)
	updates := make([]Update, len(queries))
	fails := make([]*model.Failure, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			updates[i], fails[i] = p.searchPass(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	res := StageResult{Stage: StageResearching}
	merged, err := Merge(updates...)
	if err != nil {
		// Search passes never write overwrite fields.
		res.Failures = append(res.Failures, model.NewFailure(model.KindUnknown, "merge search passes", err))
		return res
	}
	res.Update = merged
	for _, f := range fails {
		if f != nil {
			res.Failures = append(res.Failures, f)
		}
	}
	return res
}

func (p *Pipeline) searchPass(ctx context.Context, query string) (Update, *model.Failure) {
	hits, err := p.search.Search(ctx, query)
	if err != nil {
		f := model.NewFailure(model.KindTransientFetch, fmt.Sprintf("search %q", query), err)
		return Update{Messages: []string{f.Error()}}, f
	}
	if len(hits) == 0 {
		return Update{Messages: []string{fmt.Sprintf("No results for %q", query)}}, nil
	}

	records := make([]string, 0, len(hits))
	for _, h := range hits {
		records = append(records, FormatResult(h.Title, h.Link, h.Snippet))
	}
	record := "Search results for " + query + ":\n" + strings.Join(records, "\n\n")

	return Update{
		ResearchResults: []string{record},
		Sources:         ExtractLinks(records),
	}, nil
}

func (p *Pipeline) write(ctx context.Context, state AgentState) StageResult {
	res := StageResult{Stage: StageWriting}

	fail := func(detail string, err error) StageResult {
		f := model.NewFailure(model.KindSynthesis, detail, err)
		summary := ErrorBlock(f.Error())
		res.Update = Update{Summary: &summary}
		res.Failures = []*model.Failure{f}
		return res
	}

	user := "Topic: " + state.Topic + "\n\nContext:\n" + strings.Join(state.ResearchResults, "\n\n")

	if p.guard != nil {
		estimate := p.guard.Estimate(p.tokenizer.Count(SystemPrompt+user), p.cfg.MaxOutputTokens)
		if !p.guard.Admit(estimate) {
			return fail(fmt.Sprintf("budget exceeded: estimated $%.4f, remaining $%.4f", estimate, p.guard.Remaining()), nil)
		}
	}

	summary, err := p.synth.Complete(ctx, SystemPrompt, user)
	if err != nil {
		return fail("synthesis call failed", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fail("empty synthesis reply", nil)
	}

	res.Update = Update{Summary: &summary}
	return res
}

// ErrorBlock formats detail as the Markdown error summary.
func ErrorBlock(detail string) string {
	return "## Error\n" + detail
}
