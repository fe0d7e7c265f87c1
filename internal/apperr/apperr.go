// Package apperr defines the error taxonomy shared by the catalog, checkout and review services.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for callers and for HTTP status mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindState      Kind = "state"
	KindIntegrity  Kind = "integrity"
)

// Reason is the machine-readable cause inside a Kind.
type Reason string

const (
	ReasonInvalidInput         Reason = "invalid_input"
	ReasonInvalidID            Reason = "invalid_id"
	ReasonInvalidItems         Reason = "invalid_items"
	ReasonInvalidAmount        Reason = "invalid_amount"
	ReasonInvalidPaymentMethod Reason = "invalid_payment_method"
	ReasonMissingBillingField  Reason = "missing_billing_field"
	ReasonInvalidRating        Reason = "invalid_rating"
	ReasonInvalidStatus        Reason = "invalid_status"
	ReasonInvalidPackage       Reason = "invalid_package"

	ReasonItemNotFound     Reason = "item_not_found"
	ReasonPackageNotFound  Reason = "package_not_found"
	ReasonOrderNotFound    Reason = "order_not_found"
	ReasonUserNotFound     Reason = "user_not_found"
	ReasonReviewNotFound   Reason = "review_not_found"
	ReasonCategoryNotFound Reason = "category_not_found"

	ReasonDuplicateReview Reason = "duplicate_review"
	ReasonDuplicateName   Reason = "duplicate_name"
	ReasonConcurrentEdit  Reason = "concurrent_edit"

	ReasonPackageInactive   Reason = "package_inactive"
	ReasonIllegalTransition Reason = "illegal_transition"

	ReasonTotalMismatch Reason = "total_mismatch"
)

// Error is the canonical service error.
type Error struct {
	Kind    Kind
	Reason  Reason
	Op      string
	Message string
	Fields  []string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Reason)
	}
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an error of the given kind and reason.
func New(kind Kind, reason Reason, op, message string, fields ...string) *Error {
	return &Error{
		Kind:    kind,
		Reason:  reason,
		Op:      op,
		Message: message,
		Fields:  fields,
	}
}

// Validation builds a KindValidation error.
func Validation(reason Reason, op, message string, fields ...string) *Error {
	return New(KindValidation, reason, op, message, fields...)
}

// NotFound builds a KindNotFound error.
func NotFound(reason Reason, op, message string) *Error {
	return New(KindNotFound, reason, op, message)
}

// Conflict builds a KindConflict error.
func Conflict(reason Reason, op, message string) *Error {
	return New(KindConflict, reason, op, message)
}

// State builds a KindState error.
func State(reason Reason, op, message string) *Error {
	return New(KindState, reason, op, message)
}

// Integrity builds a KindIntegrity error.
func Integrity(reason Reason, op, message string) *Error {
	return New(KindIntegrity, reason, op, message)
}

// Wrap attaches a cause to e and returns it.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return ""
}

// ReasonOf returns the reason of err, or "" when err is not an *Error.
func ReasonOf(err error) Reason {
	if appErr, ok := As(err); ok {
		return appErr.Reason
	}
	return ""
}

// IsReason checks whether err carries the given reason.
func IsReason(err error, reason Reason) bool {
	return ReasonOf(err) == reason
}
