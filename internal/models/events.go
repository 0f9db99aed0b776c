package models

import "time"

// Notification event types
const (
	EventTypeOrderConfirmation = "ORDER_CONFIRMATION"
	EventTypeOperatorNotice    = "OPERATOR_NOTICE"
	EventTypeSecurityAlert     = "SECURITY_ALERT"
)

// BaseEvent contains common fields for all notification events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmationEvent asks the notification worker to send the buyer
// a purchase confirmation.
type OrderConfirmationEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	RecitalID     int64  `json:"recital_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	TotalAmount   int64  `json:"total_amount_cents"`
	PaymentRef    string `json:"payment_ref"`
}

// OperatorNoticeEvent asks the notification worker to tell the box office
// about a completed sale.
type OperatorNoticeEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	RecitalID   int64  `json:"recital_id"`
	TotalAmount int64  `json:"total_amount_cents"`
	Summary     string `json:"summary"`
}

// SecurityAlertEvent is raised by the anomaly detector when payment
// attempts across all clients exceed the burst threshold.
type SecurityAlertEvent struct {
	BaseEvent
	AttemptCount int       `json:"attempt_count"`
	DetectedAt   time.Time `json:"detected_at"`
	Identities   []string  `json:"identities"`
}
