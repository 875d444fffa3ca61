// Package apperr defines the error taxonomy shared by the carehub core.
//
// Callers classify failures with errors.Is against the sentinels below; the
// wrapped message carries the detail (which record, which collaborator).
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced subject, role group,
	// contract or invoice does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPeriod is returned for a period whose end precedes its start.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidAmount is returned for non-positive payments and negative
	// monetary inputs.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrExternalService marks failures of the roster, renderer, archive or
	// notification collaborators.
	ErrExternalService = errors.New("external service error")

	// ErrDuplicateInvoice is returned when an invoice already exists for the
	// (client, billing period) pair. Batch callers treat it as a skip.
	ErrDuplicateInvoice = errors.New("invoice already exists for billing period")

	// ErrInvalidTransition is returned when an operation is not legal in the
	// current state (payment on a terminal invoice, deleting a referenced
	// role group).
	ErrInvalidTransition = errors.New("invalid state transition")
)

// NotFound wraps ErrNotFound with the kind and identifier of the missing record.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// InvalidPeriod wraps ErrInvalidPeriod with a description.
func InvalidPeriod(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidPeriod)
}

// InvalidAmount wraps ErrInvalidAmount with a description.
func InvalidAmount(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidAmount)
}

// ExternalError wraps an error from an external collaborator.
type ExternalError struct {
	Service string
	Err     error
}

// External wraps err as a failure of the named collaborator.
// It returns nil when err is nil.
func External(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Service: service, Err: err}
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Is makes every ExternalError match ErrExternalService.
func (e *ExternalError) Is(target error) bool {
	return target == ErrExternalService
}
