package pipeline

import (
	"slices"

	"github.com/rotisserie/eris"
)

// ErrMergeConflict is returned when two partial updates in the same stage
// both write an overwrite field.
var ErrMergeConflict = eris.New("pipeline: conflicting writes to overwrite field")

// Reducer describes how a state field absorbs a partial update.
type Reducer int

const (
	// Overwrite replaces the field with the newest value.
	Overwrite Reducer = iota
	// Append concatenates, keeping duplicates.
	Append
	// Dedup concatenates, dropping values already present.
	Dedup
)

// Field names an AgentState field.
type Field string

const (
	FieldTopic           Field = "topic"
	FieldMessages        Field = "messages"
	FieldResearchResults Field = "research_results"
	FieldSources         Field = "sources"
	FieldSummary         Field = "summary"
)

// Reducers is the fixed merge table for AgentState.
var Reducers = map[Field]Reducer{
	FieldTopic:           Overwrite,
	FieldMessages:        Append,
	FieldResearchResults: Append,
	FieldSources:         Dedup,
	FieldSummary:         Overwrite,
}

// AgentState is the research state for one topic run.
type AgentState struct {
	Topic           string   `json:"topic"`
	Messages        []string `json:"messages"`
	ResearchResults []string `json:"research_results"`
	Sources         []string `json:"sources"`
	Summary         string   `json:"summary"`
}

// Update is a partial write to AgentState. Nil overwrite fields are left alone.
type Update struct {
	Topic           *string
	Messages        []string
	ResearchResults []string
	Sources         []string
	Summary         *string
}

// Combine merges b after a so that applying the result equals applying a
// then b. Overwrite fields set by both fail with ErrMergeConflict.
func Combine(a, b Update) (Update, error) {
	out := Update{
		Messages:        concat(a.Messages, b.Messages),
		ResearchResults: concat(a.ResearchResults, b.ResearchResults),
		Sources:         AppendUnique(slices.Clone(a.Sources), b.Sources...),
	}

	var err error
	if out.Topic, err = pickOverwrite(FieldTopic, a.Topic, b.Topic); err != nil {
		return Update{}, err
	}
	if out.Summary, err = pickOverwrite(FieldSummary, a.Summary, b.Summary); err != nil {
		return Update{}, err
	}
	return out, nil
}

// Merge folds updates left to right with Combine.
func Merge(updates ...Update) (Update, error) {
	var out Update
	for _, u := range updates {
		var err error
		if out, err = Combine(out, u); err != nil {
			return Update{}, err
		}
	}
	return out, nil
}

func pickOverwrite(field Field, a, b *string) (*string, error) {
	switch {
	case a != nil && b != nil:
		return nil, eris.Wrapf(ErrMergeConflict, "field %s", field)
	case b != nil:
		return b, nil
	default:
		return a, nil
	}
}

func concat(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// Accumulator applies partial updates to an AgentState using Reducers.
type Accumulator struct {
	state AgentState
}

// NewAccumulator starts an accumulator for topic.
func NewAccumulator(topic string) *Accumulator {
	return &Accumulator{state: AgentState{Topic: topic}}
}

// Apply merges one update into the state.
func (a *Accumulator) Apply(u Update) {
	if u.Topic != nil {
		a.state.Topic = *u.Topic
	}
	a.state.Messages = append(a.state.Messages, u.Messages...)
	a.state.ResearchResults = append(a.state.ResearchResults, u.ResearchResults...)
	a.state.Sources = AppendUnique(a.state.Sources, u.Sources...)
	if u.Summary != nil {
		a.state.Summary = *u.Summary
	}
}

// State returns a copy of the accumulated state.
func (a *Accumulator) State() AgentState {
	return AgentState{
		Topic:           a.state.Topic,
		Messages:        slices.Clone(a.state.Messages),
		ResearchResults: slices.Clone(a.state.ResearchResults),
		Sources:         slices.Clone(a.state.Sources),
		Summary:         a.state.Summary,
	}
}
