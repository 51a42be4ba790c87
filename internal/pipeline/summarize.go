package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/monitoring"
)

// credibleDomains raise a source's credibility score when they appear in its
// host name.
var credibleDomains = []string{
	".edu", ".gov", ".org",
	"reuters", "bloomberg", "forbes",
	"harvard", "mit", "stanford",
	"nature", "science",
}

// summarizeSources runs the summarize stage: one LLM call per fetched source
// plus heuristic credibility and relevance scoring. Returns the summaries and
// the LLM token usage of the stage.
func (o *Orchestrator) summarizeSources(ctx context.Context, req model.ResearchRequest, contents []model.FetchedContent, use *usage) ([]model.SourceSummary, int, error) {
	log := zap.L().With(zap.String("topic", req.Topic))

	var summaries []model.SourceSummary
	var stageTokens int

	for _, content := range contents {
		gen, err := o.llm.Generate(ctx, summarizePrompt(req.Topic, content))
		if err != nil {
			return nil, stageTokens, eris.Wrapf(err, "summarize %s", content.URL)
		}

		inTokens, outTokens := gen.InputTokens, gen.OutputTokens
		if inTokens == 0 && outTokens == 0 {
			inTokens = monitoring.EstimateTokens(content.Content, o.llm.Model())
			outTokens = monitoring.EstimateTokens(gen.Text, o.llm.Model())
		}
		stageTokens += inTokens + outTokens
		use.addLLM(inTokens, outTokens)

		summaryText, keyPoints := parseSummary(gen.Text)
		credibility := credibilityScore(content.URL, content.Title)
		relevance := relevanceScore(req.Topic, content.Title+" "+content.Content)

		summaries = append(summaries, model.SourceSummary{
			SourceID: uuid.New().String(),
			Metadata: model.SourceMetadata{
				URL:              content.URL,
				Title:            content.Title,
				SourceType:       classifySourceType(content.URL),
				CredibilityScore: credibility,
				WordCount:        content.WordCount,
				FetchedAt:        content.FetchedAt,
			},
			KeyPoints:       keyPoints,
			SummaryText:     summaryText,
			RelevanceScore:  relevance,
			ConfidenceScore: (credibility + relevance) / 2,
		})
	}

	if len(summaries) == 0 {
		return nil, stageTokens, eris.New("summarize: no sources to summarize")
	}

	log.Debug("summarize complete",
		zap.Int("sources", len(summaries)),
		zap.Int("tokens", stageTokens),
	)
	return summaries, stageTokens, nil
}

func summarizePrompt(topic string, content model.FetchedContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a research assistant. Summarize the following source as it relates to the topic %q.\n\n", topic)
	fmt.Fprintf(&b, "Title: %s\nURL: %s\n\n%s\n\n", content.Title, content.URL, content.Content)
	b.WriteString("Write a concise summary paragraph, then list 3-5 key points, each on its own line starting with \"- \".")
	return b.String()
}

// parseSummary splits an LLM response into the summary paragraph and the
// bulleted key points.
func parseSummary(text string) (summary string, keyPoints []string) {
	var summaryLines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "- "):
			keyPoints = append(keyPoints, strings.TrimPrefix(trimmed, "- "))
		case strings.HasPrefix(trimmed, "* "):
			keyPoints = append(keyPoints, strings.TrimPrefix(trimmed, "* "))
		case trimmed != "":
			summaryLines = append(summaryLines, trimmed)
		}
	}
	summary = strings.Join(summaryLines, " ")
	if summary == "" {
		summary = strings.TrimSpace(text)
	}
	return summary, keyPoints
}

// credibilityScore starts at 5.0, rewards reputable domains and
// research-flavored titles, and caps at 10.
func credibilityScore(sourceURL, title string) float64 {
	score := 5.0

	lowerURL := strings.ToLower(sourceURL)
	for _, domain := range credibleDomains {
		if strings.Contains(lowerURL, domain) {
			score += 2.0
			break
		}
	}

	lowerTitle := strings.ToLower(title)
	for _, marker := range []string{"research", "study", "analysis", "report"} {
		if strings.Contains(lowerTitle, marker) {
			score += 1.0
			break
		}
	}

	if score > 10 {
		score = 10
	}
	return score
}

// relevanceScore measures topic-word overlap against the source text, scaled
// to 0-10 with a floor of 5.0 so weak heuristics don't sink a source alone.
func relevanceScore(topic, text string) float64 {
	topicWords := strings.Fields(strings.ToLower(topic))
	if len(topicWords) == 0 {
		return 5.0
	}

	lowerText := strings.ToLower(text)
	var matched int
	for _, w := range topicWords {
		if strings.Contains(lowerText, w) {
			matched++
		}
	}

	score := float64(matched) / float64(len(topicWords)) * 10
	if score < 5.0 {
		score = 5.0
	}
	if score > 10 {
		score = 10
	}
	return score
}

// classifySourceType buckets a URL by its host and path.
func classifySourceType(sourceURL string) model.SourceType {
	lower := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(lower, "arxiv.org"), strings.Contains(lower, ".edu"), strings.Contains(lower, "doi.org"):
		return model.SourceAcademicPaper
	case strings.Contains(lower, "reuters"), strings.Contains(lower, "bloomberg"), strings.Contains(lower, "/news/"), strings.Contains(lower, "news."):
		return model.SourceNewsArticle
	case strings.Contains(lower, "blog"), strings.Contains(lower, "medium.com"), strings.Contains(lower, "substack"):
		return model.SourceBlogPost
	case strings.Contains(lower, "docs."), strings.Contains(lower, "/docs/"), strings.Contains(lower, "documentation"):
		return model.SourceDocumentation
	default:
		return model.SourceWebArticle
	}
}
