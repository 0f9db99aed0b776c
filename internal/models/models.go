package models

import (
	"database/sql"
	"time"
)

// Recital represents a concert that tickets are sold for
type Recital struct {
	ID         int64     `db:"id" json:"id"`
	Slug       string    `db:"slug" json:"slug"`
	ArtistName string    `db:"artist_name" json:"artist_name"`
	Venue      string    `db:"venue" json:"venue"`
	StartsAt   time.Time `db:"starts_at" json:"starts_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// TicketType represents a price tier for a recital (e.g. Adult, Student)
type TicketType struct {
	ID             int64  `db:"id" json:"id"`
	RecitalID      int64  `db:"recital_id" json:"recital_id"`
	Name           string `db:"name" json:"name"`
	UnitPriceCents int64  `db:"unit_price_cents" json:"unit_price_cents"`
}

// Order represents one ticket purchase attempt
type Order struct {
	ID               int64          `db:"id" json:"id"`
	RecitalID        int64          `db:"recital_id" json:"recital_id"`
	CustomerEmail    string         `db:"customer_email" json:"customer_email"`
	CustomerName     string         `db:"customer_name" json:"customer_name"`
	TotalAmountCents int64          `db:"total_amount_cents" json:"total_amount_cents"`
	PaymentStatus    string         `db:"payment_status" json:"payment_status"`
	PaymentRef       sql.NullString `db:"payment_ref" json:"payment_ref,omitempty"`
	Notes            string         `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one ticket line in an order. Immutable once created.
type OrderItem struct {
	ID             int64 `db:"id" json:"id"`
	OrderID        int64 `db:"order_id" json:"order_id"`
	TicketTypeID   int64 `db:"ticket_type_id" json:"ticket_type_id"`
	Quantity       int   `db:"quantity" json:"quantity"`
	UnitPriceCents int64 `db:"unit_price_cents" json:"unit_price_cents"`
}

// Payment statuses. PaymentStatusPending exists only before the first
// persist; a stored order is always processing, completed or failed.
const (
	PaymentStatusPending    = "pending_creation"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
)

// Retryable reports whether an order in the given status may be charged
// again. Orders stuck in processing after a crash are retryable on purpose.
func Retryable(status string) bool {
	return status == PaymentStatusProcessing || status == PaymentStatusFailed
}
