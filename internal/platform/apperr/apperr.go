// Package apperr defines the coded error taxonomy shared by all
// services: validation, not-found, state conflict, guard violation,
// permission, and internal failures. Conflicts may carry the current
// authoritative state so callers can resolve without a second fetch.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation      = "VALIDATION"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeStaleVersion    = "STALE_VERSION"
	CodeGuardViolation  = "GUARD_VIOLATION"
	CodePermission      = "PERMISSION_DENIED"
	CodeInternal        = "INTERNAL"
	CodeNoCarePathway   = "NO_CARE_PATHWAY"
	CodeOneHardNext     = "ONE_HARD_NEXT_VIOLATION"
	CodeAssignedOnly    = "ASSIGNED_PROVIDER_ONLY"
	CodeSlotConflict    = "SLOT_CONFLICT"
	CodeIntentMismatch  = "INTENT_MISMATCH"
	CodeAlreadyLinked   = "PATHWAY_ALREADY_LINKED"
	CodePathwayInUse    = "PATHWAY_IN_USE"
	CodeEpisodeClosed   = "EPISODE_CLOSED"
	CodeInvalidStepMove = "INVALID_STEP_TRANSITION"
)

// Error is a machine-readable service error.
type Error struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Status    int                    `json:"-"`
	Retryable bool                   `json:"retryable,omitempty"`
	// Current carries the authoritative state on conflicts (e.g. the
	// live pathway record on a stale edit) so the caller can re-diff.
	Current interface{} `json:"current,omitempty"`
	// OverrideHint explains how a privileged caller may bypass the
	// rejection, when a bypass exists.
	OverrideHint string                 `json:"override_hint,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	wrapped      error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// WithCurrent attaches the authoritative current state.
func (e *Error) WithCurrent(v interface{}) *Error {
	e.Current = v
	return e
}

// WithHint attaches an override hint.
func (e *Error) WithHint(hint string) *Error {
	e.OverrideHint = hint
	return e
}

// WithDetail attaches one structured detail field.
func (e *Error) WithDetail(key string, v interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = v
	return e
}

func New(code string, status int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return New(CodeValidation, http.StatusBadRequest, format, args...)
}

func NotFound(resource string, id interface{}) *Error {
	return New(CodeNotFound, http.StatusNotFound, "%s %v not found", resource, id)
}

func Conflict(code, format string, args ...interface{}) *Error {
	return New(code, http.StatusConflict, format, args...)
}

func Guard(code, format string, args ...interface{}) *Error {
	return New(code, http.StatusConflict, format, args...)
}

func Permission(format string, args ...interface{}) *Error {
	return New(CodePermission, http.StatusForbidden, format, args...)
}

// Internal wraps an unexpected failure. Transient transport failures
// are marked retryable so an automatic retry layer can act on them.
func Internal(err error) *Error {
	return &Error{
		Code:      CodeInternal,
		Status:    http.StatusInternalServerError,
		Message:   "internal error",
		Retryable: true,
		wrapped:   err,
	}
}

// As extracts an *Error from err, or wraps err as an internal error.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
