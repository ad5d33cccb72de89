package model

import "time"

// Article is a fetched news item with attribution kept for citation.
type Article struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Link         string     `json:"link"`
	Summary      string     `json:"summary,omitempty"`
	FullText     string     `json:"full_text,omitempty"`
	SourceName   string     `json:"source_name"`
	Topic        string     `json:"topic"`
	Published    *time.Time `json:"published,omitempty"`
	ProcessedAt  time.Time  `json:"processed_at"`
	IsSummarized bool       `json:"is_summarized"`
}

// SearchResult is one hit returned by a search backend.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}
