package model

import (
	"strings"
)

// ResearchDepth describes how thorough a research run should be.
type ResearchDepth string

const (
	DepthQuick  ResearchDepth = "QUICK"
	DepthMedium ResearchDepth = "MEDIUM"
	DepthDeep   ResearchDepth = "DEEP"
)

const (
	// MinTopicLength and MaxTopicLength bound the trimmed topic string.
	MinTopicLength = 3
	MaxTopicLength = 500

	defaultDepth = 2
)

// ResearchRequest is the inbound payload for a brief generation run.
type ResearchRequest struct {
	Topic    string   `json:"topic"`
	Depth    int      `json:"depth"`
	FollowUp bool     `json:"follow_up"`
	Context  []string `json:"context,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
}

// Normalize trims the topic and applies the default depth. It must be called
// before Validate.
func (r *ResearchRequest) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Depth == 0 {
		r.Depth = defaultDepth
	}
}

// Validate checks the request against the input contract. It returns a
// *ValidationError so the caller can reject the request before any pipeline
// state is created.
func (r *ResearchRequest) Validate() error {
	if len(r.Topic) < MinTopicLength {
		return NewValidationError("topic", "must be at least 3 characters")
	}
	if len(r.Topic) > MaxTopicLength {
		return NewValidationError("topic", "must be at most 500 characters")
	}
	if r.Depth < 1 || r.Depth > 3 {
		return NewValidationError("depth", "must be 1, 2, or 3")
	}
	return nil
}

// ResearchDepth maps the numeric depth to its enumerated level.
func (r *ResearchRequest) ResearchDepth() ResearchDepth {
	switch r.Depth {
	case 1:
		return DepthQuick
	case 3:
		return DepthDeep
	default:
		return DepthMedium
	}
}
