package domain

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies an attempt failure for retry decisions and
// reporting.
type FailureKind string

const (
	// Connectivity
	KindAllPathsUnreachable FailureKind = "all_paths_unreachable"
	KindPathUnreachable     FailureKind = "path_unreachable"
	KindDriverError         FailureKind = "driver_error"

	// Extraction
	KindAuthenticationFailure      FailureKind = "authentication_failure"
	KindChallengeResolutionFailure FailureKind = "challenge_resolution_failure"
	KindExportTimeout              FailureKind = "export_timeout"
	KindIntegrityCheckFailure      FailureKind = "integrity_check_failure"
	KindUnknownQueryTarget         FailureKind = "unknown_query_target"

	// Transformation
	KindMalformedInput       FailureKind = "malformed_input"
	KindMissingRequiredField FailureKind = "missing_required_field"

	// Storage
	KindConnectionLost      FailureKind = "connection_lost"
	KindConstraintViolation FailureKind = "constraint_violation"
	KindSchemaMismatch      FailureKind = "schema_mismatch"

	// Executor
	KindTimeout FailureKind = "timeout"
	KindUnknown FailureKind = "unknown"
)

// PipelineError carries the failure kind and retryability of a phase
// operation failure.
type PipelineError struct {
	Kind      FailureKind
	Retryable bool
	Err       error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a failure the executor may retry.
func Retryable(kind FailureKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Retryable: true, Err: err}
}

// Fatal wraps err as a failure that short-circuits the phase.
func Fatal(kind FailureKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Retryable: false, Err: err}
}

// KindOf extracts the failure kind from err. Deadline expiry maps to
// KindTimeout; anything untyped is KindUnknown.
func KindOf(err error) FailureKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable reports whether err may be retried. Untyped errors default
// to retryable; only an explicit fatal kind stops a phase early.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
