package pipeline

import (
	"fmt"

	"github.com/kickspeed/kickspeed/internal/errors"
)

// FailureKind is the caller visible reason a run was aborted
type FailureKind string

const (
	// KindNoFrames means frame sampling produced nothing
	KindNoFrames FailureKind = "no_frames"
	// KindProcessingFailed covers every other fatal step failure
	KindProcessingFailed FailureKind = "processing_failed"
)

// Step names used in logs, metrics and errors
const (
	StepSampleFrames = "sample_frames"
	StepInference    = "inference"
	StepPoster       = "poster"
	StepCompareClip  = "compare_clip"
	StepMerge        = "merge"
	StepPublish      = "publish"
	StepQRCode       = "qr_code"
	StepPersist      = "persist"
)

// Error is returned when a run is aborted
type Error struct {
	Kind FailureKind
	Step string
	ID   string // submission id
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the underlying failure message surfaced to clients
func (e *Error) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// KindOf returns the failure kind of err, or "" when err is not a pipeline error
func KindOf(err error) FailureKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func fatal(kind FailureKind, step, id string, err error) *Error {
	enhanced := errors.New(err).
		Component("pipeline").
		Category(errors.CategoryProcessing).
		Context("step", step).
		Context("submission_id", id).
		Context("kind", string(kind)).
		Build()
	return &Error{Kind: kind, Step: step, ID: id, Err: enhanced}
}
