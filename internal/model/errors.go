package model

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed ResearchRequest before the pipeline
// starts. No metrics record exists for a validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PipelineError is terminal for a request: a stage exhausted its retry budget
// or hit a non-transient failure. Stage names the failing stage, Attempts the
// number of attempts made.
type PipelineError struct {
	Stage    string `json:"stage"`
	Attempts int    `json:"attempts"`
	Err      error  `json:"-"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// QualityError means a brief was assembled but its confidence score fell
// below the configured threshold. It is reported as a pipeline failure.
type QualityError struct {
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality: confidence %.2f below threshold %.2f", e.Confidence, e.Threshold)
}

// Monitoring registry misuse errors. These indicate a programming error, not
// a user-facing condition.
var (
	ErrDuplicateRequest = errors.New("monitoring: request already active")
	ErrUnknownRequest   = errors.New("monitoring: request not active")
	ErrNotFound         = errors.New("monitoring: execution not found")
)

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsQuality reports whether err is (or wraps) a QualityError.
func IsQuality(err error) bool {
	var qe *QualityError
	return errors.As(err, &qe)
}
