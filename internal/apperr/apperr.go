// Package apperr defines the sentinel error taxonomy shared by every
// subsystem in the control plane, per the error handling design.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure so callers can branch on it with
// errors.Is without parsing message strings.
type Kind string

const (
	// KindInsufficientData signals too few samples for a computation
	// (EQS, trust features, correlation, decay check).
	KindInsufficientData Kind = "insufficient_data"
	// KindNotFound signals a missing proposal, strategy, agent or record.
	KindNotFound Kind = "not_found"
	// KindInvalidState signals an operation forbidden in the current
	// lifecycle state.
	KindInvalidState Kind = "invalid_state"
	// KindLockNotAvailable signals the finality lock is held by another
	// domain and has not expired.
	KindLockNotAvailable Kind = "lock_not_available"
	// KindLockTimeout signals the lock expired between read and write.
	KindLockTimeout Kind = "lock_timeout"
	// KindStoreError signals an underlying record-store or serialization
	// failure.
	KindStoreError Kind = "store_error"
	// KindTimeout signals a record-store round trip exceeded its bound.
	KindTimeout Kind = "timeout"
	// KindRiskLimitBreached signals a pre-trade risk check failed.
	KindRiskLimitBreached Kind = "risk_limit_breached"
	// KindSignalRejected signals a signal contradicts the current market
	// assessment.
	KindSignalRejected Kind = "signal_rejected"
	// KindInternal signals a programmer error that should never escape.
	KindInternal Kind = "internal"
)

// Error is the concrete error type carrying a Kind plus a wrapped cause.
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

// Is lets errors.Is match on Kind alone via a sentinel *Error{Kind: k}.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error with the given kind, message, and cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// sentinels used with errors.Is(err, apperr.InsufficientData) etc.
var (
	InsufficientData = &Error{Kind: KindInsufficientData}
	NotFound         = &Error{Kind: KindNotFound}
	InvalidState     = &Error{Kind: KindInvalidState}
	LockNotAvailable = &Error{Kind: KindLockNotAvailable}
	LockTimeout      = &Error{Kind: KindLockTimeout}
	StoreError       = &Error{Kind: KindStoreError}
	Timeout          = &Error{Kind: KindTimeout}
	RiskLimitBreached = &Error{Kind: KindRiskLimitBreached}
	SignalRejected   = &Error{Kind: KindSignalRejected}
	Internal         = &Error{Kind: KindInternal}
)

// Is reports whether err's Kind matches kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
