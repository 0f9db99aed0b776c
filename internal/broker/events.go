package broker

import (
	"context"
	"fmt"
	"time"

	"ticket-service/internal/models"

	"github.com/google/uuid"
)

// NotificationPublisher emits notification events for the notification
// worker. It backs both the settlement service's Notifier and the anomaly
// detector's alert sink. Publishing is best-effort from the caller's view:
// callers log failures and move on, a lost notification never fails a
// payment.
type NotificationPublisher struct {
	producer *Producer
}

// NewNotificationPublisher creates a new notification publisher
func NewNotificationPublisher(producer *Producer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

// SendConfirmation publishes a buyer confirmation request for a completed
// order.
func (np *NotificationPublisher) SendConfirmation(ctx context.Context, order *models.Order) error {
	event := &models.OrderConfirmationEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderConfirmation),
		OrderID:       order.ID,
		RecitalID:     order.RecitalID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		TotalAmount:   order.TotalAmountCents,
		PaymentRef:    order.PaymentRef.String,
	}
	return np.producer.PublishEvent(ctx, orderKey(order.ID), event)
}

// SendOperatorNotice publishes a box-office notice for a completed order.
func (np *NotificationPublisher) SendOperatorNotice(ctx context.Context, order *models.Order) error {
	event := &models.OperatorNoticeEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOperatorNotice),
		OrderID:     order.ID,
		RecitalID:   order.RecitalID,
		TotalAmount: order.TotalAmountCents,
		Summary:     fmt.Sprintf("Ticket sale: order %d, %d cents", order.ID, order.TotalAmountCents),
	}
	return np.producer.PublishEvent(ctx, orderKey(order.ID), event)
}

// SendSecurityAlert publishes an operator alert about a payment attempt
// burst.
func (np *NotificationPublisher) SendSecurityAlert(ctx context.Context, count int, detectedAt time.Time, identities []string) error {
	event := &models.SecurityAlertEvent{
		BaseEvent:    newBaseEvent(models.EventTypeSecurityAlert),
		AttemptCount: count,
		DetectedAt:   detectedAt,
		Identities:   identities,
	}
	return np.producer.PublishEvent(ctx, "security-alert", event)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}
