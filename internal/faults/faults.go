// Package faults defines the pipeline failure taxonomy. Stage failures are
// recorded on the item as (stage, kind, message) and never abort a batch.
package faults

import (
	"errors"
	"fmt"

	"github.com/dubclip/dubclip/internal/types"
)

type Kind string

const (
	SourceUnavailable       Kind = "source-unavailable"
	TranscriptionFailure    Kind = "transcription-failure"
	TranslationFailure      Kind = "translation-failure"
	SynthesisFailure        Kind = "synthesis-failure"
	AssemblyFailure         Kind = "assembly-failure"
	InsufficientBackground  Kind = "insufficient-background"
	SegmentSelectionFailure Kind = "segment-selection-failure"
)

// StageError annotates an error with the stage and fault kind it belongs to.
type StageError struct {
	Stage types.Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// New wraps err as a StageError.
func New(stage types.Stage, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// Newf is New with a formatted message.
func Newf(stage types.Stage, kind Kind, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the fault kind from an error chain, or "" if untagged.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// transient marks an error as retryable (network, rate limit, timeout).
type transient struct{ err error }

func (t *transient) Error() string { return t.err.Error() }
func (t *transient) Unwrap() error { return t.err }

// Transient tags err as retryable with bounded backoff.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transient{err: err}
}

// IsTransient reports whether any error in the chain is tagged transient.
// Structural failures (missing file, empty transcript, timing violation) are
// never transient and fail fast.
func IsTransient(err error) bool {
	var t *transient
	return errors.As(err, &t)
}
