package service

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports bad caller input (empty items, non-positive
// quantity, declared total not matching the item subtotals).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NotFoundError reports an unknown order or recital.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Kind, e.ID)
}

// InvalidStateError reports an illegal status transition, e.g. retrying
// an order that already completed.
type InvalidStateError struct {
	OrderID int64
	Status  string
	Reason  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %d in status %q %s", e.OrderID, e.Status, e.Reason)
}

// GatewayError reports that the payment processor rejected or errored the
// charge. It always results in the order transitioning to failed.
type GatewayError struct {
	Details []string
	Err     error
}

func (e *GatewayError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("payment gateway declined: %s", strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("payment gateway call failed: %v", e.Err)
	}
	return "payment gateway call failed"
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PersistenceError reports a ledger write failure. During order creation it
// is fatal to the request: no order exists, nothing to mark failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrChargePanic wraps a panic recovered at the charge boundary after the
// order was forced to failed.
var ErrChargePanic = errors.New("charge aborted by internal error")
