package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/monitoring"
)

// synthesisOutput is the JSON shape the synthesis prompt asks the LLM for.
type synthesisOutput struct {
	ExecutiveSummary string   `json:"executive_summary"`
	DetailedAnalysis string   `json:"detailed_analysis"`
	KeyFindings      []string `json:"key_findings"`
	Insights         []struct {
		Category    string   `json:"category"`
		Description string   `json:"description"`
		SourceURLs  []string `json:"source_urls"`
		Confidence  float64  `json:"confidence"`
	} `json:"insights"`
	Limitations []string `json:"limitations"`
}

// synthesizeBrief runs the synthesize stage: one LLM call combining every
// source summary (and follow-up history) into the final brief, validated
// against the quality threshold before it is returned.
func (o *Orchestrator) synthesizeBrief(
	ctx context.Context,
	requestID string,
	req model.ResearchRequest,
	summaries []model.SourceSummary,
	history []model.ContextEntry,
	use *usage,
) (*model.FinalBrief, int, error) {
	gen, err := o.llm.Generate(ctx, synthesizePrompt(req.Topic, summaries, history))
	if err != nil {
		return nil, 0, eris.Wrap(err, "synthesize")
	}

	inTokens, outTokens := gen.InputTokens, gen.OutputTokens
	if inTokens == 0 && outTokens == 0 {
		outTokens = monitoring.EstimateTokens(gen.Text, o.llm.Model())
	}
	stageTokens := inTokens + outTokens
	use.addLLM(inTokens, outTokens)

	out, parseErr := parseSynthesis(gen.Text)
	if parseErr != nil {
		zap.L().Warn("synthesis output not parseable, using fallback assembly", zap.Error(parseErr))
		out = fallbackSynthesis(req.Topic, summaries)
	}

	brief := &model.FinalBrief{
		RequestID:        requestID,
		Topic:            req.Topic,
		ExecutiveSummary: out.ExecutiveSummary,
		KeyFindings:      out.KeyFindings,
		DetailedAnalysis: out.DetailedAnalysis,
		Sources:          summaries,
		ConfidenceScore:  confidenceScore(summaries),
		ResearchDepth:    req.ResearchDepth(),
		Limitations:      out.Limitations,
		IsFollowUp:       req.FollowUp,
		CreatedAt:        time.Now().UTC(),
	}

	for _, ins := range out.Insights {
		brief.Insights = append(brief.Insights, model.ResearchInsight{
			InsightID:         uuid.New().String(),
			Category:          ins.Category,
			Description:       ins.Description,
			SupportingSources: ins.SourceURLs,
			ConfidenceLevel:   ins.Confidence,
		})
	}

	if len(brief.Limitations) == 0 {
		brief.Limitations = defaultLimitations(summaries)
	}

	if err := brief.Validate(o.cfg.Pipeline.QualityThreshold); err != nil {
		// Quality and contract failures are terminal: retrying synthesis on
		// the same inputs will not raise the score.
		return nil, stageTokens, err
	}

	return brief, stageTokens, nil
}

func synthesizePrompt(topic string, summaries []model.SourceSummary, history []model.ContextEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a research analyst. Synthesize a research brief on %q from the source summaries below.\n\n", topic)

	if len(history) > 0 {
		b.WriteString("Prior research context (this is a follow-up request):\n")
		for _, h := range history {
			if h.Topic != "" {
				fmt.Fprintf(&b, "Topic: %s\n", h.Topic)
			}
			fmt.Fprintf(&b, "%s\n\n", h.BriefSummary)
		}
	}

	for i, s := range summaries {
		fmt.Fprintf(&b, "Source %d: %s (%s)\n%s\n", i+1, s.Metadata.Title, s.Metadata.URL, s.SummaryText)
		for _, kp := range s.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Respond with a single JSON object, no markdown fences, with these fields:
{
  "executive_summary": "at least 150 words",
  "detailed_analysis": "at least 300 words",
  "key_findings": ["up to 10 findings"],
  "insights": [{"category": "...", "description": "...", "source_urls": ["..."], "confidence": 0.0}],
  "limitations": ["..."]
}`)
	return b.String()
}

// parseSynthesis decodes the LLM response, tolerating markdown code fences.
func parseSynthesis(text string) (*synthesisOutput, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Some models prefix prose before the object; cut to the first brace.
	if idx := strings.Index(cleaned, "{"); idx > 0 {
		cleaned = cleaned[idx:]
	}

	var out synthesisOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, eris.Wrap(err, "synthesize: decode output")
	}
	if out.ExecutiveSummary == "" || out.DetailedAnalysis == "" {
		return nil, eris.New("synthesize: missing required fields")
	}
	return &out, nil
}

// fallbackSynthesis assembles a brief directly from the summaries when the
// LLM output cannot be decoded.
func fallbackSynthesis(topic string, summaries []model.SourceSummary) *synthesisOutput {
	var exec, analysis strings.Builder
	fmt.Fprintf(&exec, "Research brief on %s, synthesized from %d sources. ", topic, len(summaries))

	var findings []string
	for _, s := range summaries {
		fmt.Fprintf(&analysis, "%s (%s): %s\n\n", s.Metadata.Title, s.Metadata.URL, s.SummaryText)
		if len(s.KeyPoints) > 0 {
			findings = append(findings, s.KeyPoints[0])
		}
		if exec.Len() < model.MinExecutiveSummaryLen {
			exec.WriteString(s.SummaryText + " ")
		}
	}
	if len(findings) > model.MaxKeyFindings {
		findings = findings[:model.MaxKeyFindings]
	}

	return &synthesisOutput{
		ExecutiveSummary: strings.TrimSpace(exec.String()),
		DetailedAnalysis: strings.TrimSpace(analysis.String()),
		KeyFindings:      findings,
		Limitations:      []string{"Synthesis model output could not be parsed; brief assembled directly from source summaries."},
	}
}

// confidenceScore averages per-source confidence, penalizing thin evidence.
func confidenceScore(summaries []model.SourceSummary) float64 {
	if len(summaries) == 0 {
		return 0
	}

	var total float64
	for _, s := range summaries {
		total += s.ConfidenceScore
	}
	score := total / float64(len(summaries))

	if len(summaries) < 3 {
		score -= 1.0
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score
}

func defaultLimitations(summaries []model.SourceSummary) []string {
	var limitations []string
	if len(summaries) < 3 {
		limitations = append(limitations, "Based on a small number of sources.")
	}
	var lowCred int
	for _, s := range summaries {
		if s.Metadata.CredibilityScore < 6 {
			lowCred++
		}
	}
	if lowCred > len(summaries)/2 {
		limitations = append(limitations, "Most sources have moderate credibility scores.")
	}
	if len(limitations) == 0 {
		limitations = append(limitations, "Automated synthesis; findings should be verified against primary sources.")
	}
	return limitations
}
