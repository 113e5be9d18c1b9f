// Package errs defines the router's error taxonomy: a small set of kinds
// callers can switch on, following the teacher's ResponseCode pattern of
// attaching classification methods to a lightweight enum rather than
// building a typed exception hierarchy.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy exposed to callers of Decide/Feedback.
// PredictorUnavailable deliberately has no Kind: it is recovered locally by
// the Scorer's deterministic fallback and never surfaced.
type Kind string

const (
	InvalidArgument     Kind = "invalid_argument"
	NoEligibleCandidate Kind = "no_eligible_candidate"
	CandidateUnavailable Kind = "candidate_unavailable"
	Cancelled           Kind = "cancelled"
	DeadlineExceeded    Kind = "deadline_exceeded"
	Internal            Kind = "internal"
)

// Error is the router's surfaced error type. It carries a Kind so callers
// can branch on error class without string matching, plus an optional
// wrapped cause for operator correlation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is enables errors.Is(err, errs.Sentinel(errs.NoEligibleCandidate)) style
// comparisons by matching on Kind; see KindOf for the idiomatic
// extraction path.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// Sentinel retains a Kind-only Error for use with errors.Is comparisons,
// e.g. errors.Is(err, errs.Sentinel(errs.NoEligibleCandidate)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
