package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	req := ResearchRequest{Topic: "  quantum computing  "}
	req.Normalize()
	assert.Equal(t, "quantum computing", req.Topic)
	assert.Equal(t, 2, req.Depth)

	req = ResearchRequest{Topic: "ai", Depth: 3}
	req.Normalize()
	assert.Equal(t, 3, req.Depth)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		req   ResearchRequest
		field string
	}{
		{"topic too short", ResearchRequest{Topic: "ab", Depth: 2}, "topic"},
		{"topic too long", ResearchRequest{Topic: strings.Repeat("x", 501), Depth: 2}, "topic"},
		{"depth zero", ResearchRequest{Topic: "valid topic", Depth: 0}, "depth"},
		{"depth too deep", ResearchRequest{Topic: "valid topic", Depth: 4}, "depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	valid := ResearchRequest{Topic: "valid topic", Depth: 2}
	assert.NoError(t, valid.Validate())

	// Boundary lengths are accepted.
	assert.NoError(t, (&ResearchRequest{Topic: "abc", Depth: 1}).Validate())
	assert.NoError(t, (&ResearchRequest{Topic: strings.Repeat("x", 500), Depth: 3}).Validate())
}

func TestResearchDepth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DepthQuick, (&ResearchRequest{Depth: 1}).ResearchDepth())
	assert.Equal(t, DepthMedium, (&ResearchRequest{Depth: 2}).ResearchDepth())
	assert.Equal(t, DepthDeep, (&ResearchRequest{Depth: 3}).ResearchDepth())
}
