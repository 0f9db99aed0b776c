package gateway

import (
	"context"
	"strings"
)

// NoteLimit is the gateway's cap on the free-text note field. Notes must be
// truncated to this length before sending.
const NoteLimit = 500

// ChargeRequest describes one charge attempt. IdempotencyKey must be fresh
// for every attempt, retries included, so a repeated network call cannot
// double-charge but a deliberate retry is a new charge.
type ChargeRequest struct {
	SourceToken      string
	IdempotencyKey   string
	AmountMinorUnits int64
	Currency         string
	BuyerEmail       string
	Note             string
}

// ChargeResult is a successful charge as reported by the processor.
type ChargeResult struct {
	PaymentID        string
	Status           string
	AmountMinorUnits int64
	ReceiptURL       string
}

// Client is the boundary to the external payment processor. A nil error
// means the charge went through; a *DeclinedError carries the processor's
// error details; any other error is a transport failure (timeouts included)
// and must be treated as a failed charge, never as success.
type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// DeclinedError reports that the processor rejected the charge, either with
// an explicit error list or a payment object in a failed status.
type DeclinedError struct {
	Details []string
}

func (e *DeclinedError) Error() string {
	return "charge declined: " + strings.Join(e.Details, "; ")
}
