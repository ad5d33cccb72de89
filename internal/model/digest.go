package model

import "time"

// DigestSection is the synthesized briefing for one topic.
type DigestSection struct {
	Topic   string   `json:"topic"`
	Summary string   `json:"summary"`
	Sources []string `json:"sources,omitempty"`
}

// Digest is the multi-topic summary mailed to a subscriber. Sections keep
// the order of the subscriber's topic list.
type Digest struct {
	Sections    []DigestSection `json:"sections"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Summaries returns the topic to summary mapping.
func (d Digest) Summaries() map[string]string {
	out := make(map[string]string, len(d.Sections))
	for _, s := range d.Sections {
		out[s.Topic] = s.Summary
	}
	return out
}
