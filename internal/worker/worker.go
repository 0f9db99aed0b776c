package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"ticket-service/internal/broker"
	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Dispatcher delivers one notification to its recipient. The email/SMS
// composition layer plugs in here; the default implementation only logs.
type Dispatcher interface {
	DispatchConfirmation(ctx context.Context, event *models.OrderConfirmationEvent) error
	DispatchOperatorNotice(ctx context.Context, event *models.OperatorNoticeEvent) error
	DispatchSecurityAlert(ctx context.Context, event *models.SecurityAlertEvent) error
}

// NotificationWorker consumes notification events and hands them to the
// dispatcher. Settlement publishes fire-and-forget; this worker is the
// other half of that contract.
type NotificationWorker struct {
	consumer   *broker.Consumer
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, dispatcher Dispatcher) *NotificationWorker {
	return &NotificationWorker{
		consumer:   consumer,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch base.EventType {
	case models.EventTypeOrderConfirmation:
		var event models.OrderConfirmationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal confirmation event: %w", err)
		}
		return w.dispatcher.DispatchConfirmation(ctx, &event)

	case models.EventTypeOperatorNotice:
		var event models.OperatorNoticeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal operator notice event: %w", err)
		}
		return w.dispatcher.DispatchOperatorNotice(ctx, &event)

	case models.EventTypeSecurityAlert:
		var event models.SecurityAlertEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal security alert event: %w", err)
		}
		return w.dispatcher.DispatchSecurityAlert(ctx, &event)

	default:
		w.logger.Warn("Unhandled event type", zap.String("type", base.EventType))
		return nil
	}
}

// LogDispatcher writes notifications to the log. It stands in for the
// excluded email layer.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a dispatcher that only logs deliveries
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{logger: util.GetLogger()}
}

func (d *LogDispatcher) DispatchConfirmation(_ context.Context, event *models.OrderConfirmationEvent) error {
	d.logger.Info("Delivering buyer confirmation",
		zap.Int64("order_id", event.OrderID),
		zap.String("email", event.CustomerEmail))
	return nil
}

func (d *LogDispatcher) DispatchOperatorNotice(_ context.Context, event *models.OperatorNoticeEvent) error {
	d.logger.Info("Delivering operator notice",
		zap.Int64("order_id", event.OrderID),
		zap.String("summary", event.Summary))
	return nil
}

func (d *LogDispatcher) DispatchSecurityAlert(_ context.Context, event *models.SecurityAlertEvent) error {
	d.logger.Warn("Delivering security alert",
		zap.Int("attempts", event.AttemptCount),
		zap.Time("detected_at", event.DetectedAt),
		zap.Strings("identities", event.Identities))
	return nil
}
