package model

import (
	"regexp"
	"time"
)

// SourceType categorizes a research source.
type SourceType string

const (
	SourceWebArticle    SourceType = "web_article"
	SourceAcademicPaper SourceType = "academic_paper"
	SourceNewsArticle   SourceType = "news_article"
	SourceBlogPost      SourceType = "blog_post"
	SourceDocumentation SourceType = "documentation"
	SourceOther         SourceType = "other"
)

var httpURLPattern = regexp.MustCompile(`^https?://\S+$`)

// ValidSourceURL reports whether u looks like an http(s) URL.
func ValidSourceURL(u string) bool {
	return httpURLPattern.MatchString(u)
}

// SourceMetadata describes one fetched research source.
type SourceMetadata struct {
	URL              string     `json:"url"`
	Title            string     `json:"title"`
	Author           string     `json:"author,omitempty"`
	SourceType       SourceType `json:"source_type"`
	CredibilityScore float64    `json:"credibility_score"`
	WordCount        int        `json:"word_count"`
	FetchedAt        time.Time  `json:"fetch_timestamp"`
}

// SourceSummary is the per-source output of the summarize stage.
type SourceSummary struct {
	SourceID        string         `json:"source_id"`
	Metadata        SourceMetadata `json:"metadata"`
	KeyPoints       []string       `json:"key_points"`
	SummaryText     string         `json:"summary_text"`
	RelevanceScore  float64        `json:"relevance_score"`
	ConfidenceScore float64        `json:"confidence_score"`
}

// ResearchInsight is a single synthesized insight with its supporting sources.
type ResearchInsight struct {
	InsightID         string   `json:"insight_id"`
	Category          string   `json:"category"`
	Description       string   `json:"description"`
	SupportingSources []string `json:"supporting_sources"`
	ConfidenceLevel   float64  `json:"confidence_level"`
}

// FinalBrief is the structured research output returned to the caller.
// Once produced by the orchestrator it is not mutated.
type FinalBrief struct {
	RequestID          string            `json:"request_id"`
	Topic              string            `json:"topic"`
	ExecutiveSummary   string            `json:"executive_summary"`
	KeyFindings        []string          `json:"key_findings"`
	DetailedAnalysis   string            `json:"detailed_analysis"`
	Insights           []ResearchInsight `json:"insights"`
	Sources            []SourceSummary   `json:"sources"`
	ConfidenceScore    float64           `json:"confidence_score"`
	ResearchDepth      ResearchDepth     `json:"research_depth"`
	Limitations        []string          `json:"limitations"`
	IsFollowUp         bool              `json:"is_follow_up"`
	CreatedAt          time.Time         `json:"created_at"`
	GenerationMetadata map[string]any    `json:"generation_metadata"`
}

const (
	// MinExecutiveSummaryLen and MinDetailedAnalysisLen are the output
	// contract lower bounds.
	MinExecutiveSummaryLen = 100
	MinDetailedAnalysisLen = 200

	// MaxKeyFindings caps the key findings list.
	MaxKeyFindings = 10
)

// Validate enforces the output contract at the synthesis boundary. A brief
// below the quality threshold is rejected with a QualityError rather than
// returned to the caller.
func (b *FinalBrief) Validate(qualityThreshold float64) error {
	if len(b.ExecutiveSummary) < MinExecutiveSummaryLen {
		return NewValidationError("executive_summary", "too short")
	}
	if len(b.DetailedAnalysis) < MinDetailedAnalysisLen {
		return NewValidationError("detailed_analysis", "too short")
	}
	if len(b.KeyFindings) > MaxKeyFindings {
		b.KeyFindings = b.KeyFindings[:MaxKeyFindings]
	}
	if b.ConfidenceScore < 0 || b.ConfidenceScore > 10 {
		return NewValidationError("confidence_score", "out of range")
	}
	if b.ConfidenceScore < qualityThreshold {
		return &QualityError{Confidence: b.ConfidenceScore, Threshold: qualityThreshold}
	}
	return nil
}
