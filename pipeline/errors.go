package pipeline

import (
	"errors"
	"fmt"
)

// Outcome categories. Every failed request resolves to exactly one.
var (
	ErrRateLimited   = errors.New("too many requests for this token, retry later")
	ErrBusy          = errors.New("server busy, retry later")
	ErrInvalidToken  = errors.New("invalid or missing token")
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("media source requires authorization")
	ErrToolFailure   = errors.New("media tool failed")
	ErrArchive       = errors.New("pack archive operation failed")
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrUpload        = errors.New("pack upload failed")
)

// Outcome strings used by the HTTP layer, the journal and the counters.
const (
	OutcomeOK            = "ok"
	OutcomeInvalidToken  = "invalid_token"
	OutcomeRateLimited   = "rate_limited"
	OutcomeBusy          = "busy"
	OutcomeValidation    = "validation_failed"
	OutcomeAuthorization = "authorization_required"
	OutcomeToolFailure   = "tool_failed"
	OutcomeNotFound      = "not_found"
	OutcomeArchive       = "archive_failed"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeUpload        = "upload_failed"
	OutcomeInternal      = "internal"
)

// Stage is a state of the provisioning state machine. A StageError names
// the state that could not be reached.
type Stage string

const (
	StageValidated        Stage = "validated"
	StageMediaAcquired    Stage = "media_acquired"
	StagePackFetched      Stage = "pack_fetched"
	StagePackMutated      Stage = "pack_mutated"
	StageQuotaReserved    Stage = "quota_reserved"
	StageUploaded         Stage = "uploaded"
	StageQuotaCommitted   Stage = "quota_committed"
	StageWorkspaceCleaned Stage = "workspace_cleaned"
)

// StageError is a terminal pipeline failure. Kind is one of the package
// sentinels; Err keeps the underlying chain.
type StageError struct {
	Kind  error
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is reports whether the error's kind matches target.
func (e *StageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func fail(stage Stage, kind, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

func invalid(format string, args ...any) *StageError {
	return fail(StageValidated, ErrValidation, fmt.Errorf(format, args...))
}

var outcomes = []struct {
	kind    error
	outcome string
}{
	{ErrInvalidToken, OutcomeInvalidToken},
	{ErrRateLimited, OutcomeRateLimited},
	{ErrBusy, OutcomeBusy},
	{ErrValidation, OutcomeValidation},
	{ErrAuthorization, OutcomeAuthorization},
	{ErrToolFailure, OutcomeToolFailure},
	{ErrNotFound, OutcomeNotFound},
	{ErrArchive, OutcomeArchive},
	{ErrQuotaExceeded, OutcomeQuotaExceeded},
	{ErrUpload, OutcomeUpload},
}

// OutcomeOf maps err to its outcome string. nil is OutcomeOK; errors
// outside the taxonomy are OutcomeInternal.
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	for _, o := range outcomes {
		if errors.Is(err, o.kind) {
			return o.outcome
		}
	}
	return OutcomeInternal
}

// StageOf returns the failing stage of err, or "" if err is not a
// StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
