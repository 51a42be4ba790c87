package model

import "time"

// SearchResult is one ranked hit from the search provider.
type SearchResult struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Snippet        string  `json:"snippet"`
	Provider       string  `json:"provider,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// FetchedContent is the extracted text of one source page.
type FetchedContent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	WordCount int       `json:"word_count"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ContextEntry is one prior research interaction kept for follow-up queries.
type ContextEntry struct {
	Topic        string    `json:"topic"`
	BriefSummary string    `json:"brief_summary"`
	KeyFindings  []string  `json:"key_findings,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
