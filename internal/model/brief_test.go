package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func briefFixture() *FinalBrief {
	return &FinalBrief{
		Topic:            "test topic",
		ExecutiveSummary: strings.Repeat("s", MinExecutiveSummaryLen),
		DetailedAnalysis: strings.Repeat("a", MinDetailedAnalysisLen),
		ConfidenceScore:  7.0,
	}
}

func TestBriefValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, briefFixture().Validate(5.0))

	short := briefFixture()
	short.ExecutiveSummary = "too short"
	var ve *ValidationError
	require.ErrorAs(t, short.Validate(5.0), &ve)
	assert.Equal(t, "executive_summary", ve.Field)

	thin := briefFixture()
	thin.DetailedAnalysis = "thin"
	require.ErrorAs(t, thin.Validate(5.0), &ve)
	assert.Equal(t, "detailed_analysis", ve.Field)

	out := briefFixture()
	out.ConfidenceScore = 11.0
	require.ErrorAs(t, out.Validate(5.0), &ve)
	assert.Equal(t, "confidence_score", ve.Field)
}

func TestBriefValidate_QualityThreshold(t *testing.T) {
	t.Parallel()

	b := briefFixture()
	b.ConfidenceScore = 4.0

	err := b.Validate(5.0)
	var qe *QualityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 4.0, qe.Confidence)
	assert.Equal(t, 5.0, qe.Threshold)
	assert.True(t, IsQuality(err))
}

func TestBriefValidate_TruncatesKeyFindings(t *testing.T) {
	t.Parallel()

	b := briefFixture()
	for i := 0; i < MaxKeyFindings+5; i++ {
		b.KeyFindings = append(b.KeyFindings, "finding")
	}

	require.NoError(t, b.Validate(5.0))
	assert.Len(t, b.KeyFindings, MaxKeyFindings)
}

func TestValidSourceURL(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidSourceURL("https://example.com/page"))
	assert.True(t, ValidSourceURL("http://example.org"))
	assert.False(t, ValidSourceURL("ftp://example.com"))
	assert.False(t, ValidSourceURL("not a url"))
	assert.False(t, ValidSourceURL(""))
	assert.False(t, ValidSourceURL("https://with space.com"))
}
