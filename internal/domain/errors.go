package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by storage lookups when the key is absent.
var ErrNotFound = errors.New("not found")

// RejectionReason categorises why a raw entry was not accepted.
type RejectionReason string

const (
	RejectMissingField    RejectionReason = "missing_field"
	RejectInvalidPrice    RejectionReason = "invalid_price"
	RejectInvalidDate     RejectionReason = "invalid_date"
	RejectUnknownFuelType RejectionReason = "unknown_fuel_type"
	RejectFutureDate      RejectionReason = "future_date"
)

// ValidationError is a per-record rejection. It is counted and skipped, never retried.
type ValidationError struct {
	Reason RejectionReason
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", e.Reason, e.Field, e.Detail)
}

// RejectionOf extracts the rejection reason from err, or "" when err is not a ValidationError.
func RejectionOf(err error) RejectionReason {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// FetchError marks a source failure that survived all retries.
type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistError marks a storage failure; the batch is never partially visible.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// DeliveryError is a post-run notification failure. It is logged only.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
