package triage

import (
	"context"
	"errors"
	"fmt"
)

// FailureReason is the closed set of ways a pipeline stage can fail.
type FailureReason string

const (
	ReasonServiceUnavailable FailureReason = "service_unavailable"
	ReasonTimeout            FailureReason = "timeout"
	ReasonMalformedResponse  FailureReason = "malformed_response"
	ReasonInternal           FailureReason = "internal"
)

var (
	// ErrServiceUnavailable marks an external text service that could not be reached.
	ErrServiceUnavailable = errors.New("text service unavailable")
	// ErrMalformedResponse marks a text service reply that could not be interpreted.
	ErrMalformedResponse = errors.New("malformed text service response")
)

// StageFailure records a stage that did not produce its own result.
type StageFailure struct {
	Stage  Stage         `json:"stage"`
	Reason FailureReason `json:"reason"`
	Err    error         `json:"-"`
}

func (f StageFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s failed (%s): %v", f.Stage, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s failed (%s)", f.Stage, f.Reason)
}

func (f StageFailure) Unwrap() error { return f.Err }

// NewStageFailure classifies err into a failure reason for the given stage.
func NewStageFailure(stage Stage, err error) *StageFailure {
	return &StageFailure{Stage: stage, Reason: ReasonFor(err), Err: err}
}

// ReasonFor maps an error to its failure reason.
func ReasonFor(err error) FailureReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrMalformedResponse):
		return ReasonMalformedResponse
	case errors.Is(err, ErrServiceUnavailable):
		return ReasonServiceUnavailable
	default:
		return ReasonInternal
	}
}

// ExtractionResult is the outcome of symptom extraction. Frame is always
// usable; Failure is set when it is the all-null default.
type ExtractionResult struct {
	Frame   SymptomFrame
	Failure *StageFailure
}

// SummaryOutcome is the outcome of summarization. Failure is set when the
// patient summary fell back to the deterministic template.
type SummaryOutcome struct {
	Summary SummaryResult
	Failure *StageFailure
}
