package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnpriceable is returned when no pricing rule covers an enrollment,
	// or a tiered course has no tier that fits.
	ErrUnpriceable = errors.New("enrollment cannot be priced")

	// ErrRejectedInput is returned when a receipt fails validation before
	// matching begins.
	ErrRejectedInput = errors.New("receipt rejected")

	// ErrInvariantViolation is returned when internal bookkeeping detects
	// an impossible state, such as a candidate sum drifting from its parts.
	ErrInvariantViolation = errors.New("internal invariant violated")
)

// UnpriceableError reports which enrollment could not be priced and why.
type UnpriceableError struct {
	CourseID string
	Category CourseCategory
	TermID   string
	Detail   string
}

func (e *UnpriceableError) Error() string {
	return fmt.Sprintf("cannot price course %s (%s) in term %s: %s",
		e.CourseID, e.Category, e.TermID, e.Detail)
}

func (e *UnpriceableError) Unwrap() error {
	return ErrUnpriceable
}

// RejectionError carries the enumerated reason a receipt was rejected.
type RejectionError struct {
	ReceiptID string
	Reason    RejectReason
	Detail    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("receipt %s rejected (%s): %s", e.ReceiptID, e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejectedInput
}

// IsRejection reports whether err represents input rejection rather than an
// operational failure; rejected receipts are recorded, not retried.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejectedInput)
}

// IsUnpriceable reports whether err means the pricing catalog has no answer
// for this enrollment set.
func IsUnpriceable(err error) bool {
	return errors.Is(err, ErrUnpriceable)
}
