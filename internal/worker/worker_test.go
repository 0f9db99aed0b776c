package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ticket-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	confirmations []*models.OrderConfirmationEvent
	notices       []*models.OperatorNoticeEvent
	alerts        []*models.SecurityAlertEvent
}

func (d *recordingDispatcher) DispatchConfirmation(_ context.Context, e *models.OrderConfirmationEvent) error {
	d.confirmations = append(d.confirmations, e)
	return nil
}

func (d *recordingDispatcher) DispatchOperatorNotice(_ context.Context, e *models.OperatorNoticeEvent) error {
	d.notices = append(d.notices, e)
	return nil
}

func (d *recordingDispatcher) DispatchSecurityAlert(_ context.Context, e *models.SecurityAlertEvent) error {
	d.alerts = append(d.alerts, e)
	return nil
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestHandleMessageRoutesByEventType(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	w := &NotificationWorker{dispatcher: dispatcher, logger: zap.NewNop()}
	ctx := context.Background()

	confirmation := &models.OrderConfirmationEvent{
		BaseEvent:     models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderConfirmation},
		OrderID:       7,
		CustomerEmail: "buyer@example.com",
	}
	require.NoError(t, w.handleMessage(ctx, message(t, confirmation)))

	alert := &models.SecurityAlertEvent{
		BaseEvent:    models.BaseEvent{EventID: "e2", EventType: models.EventTypeSecurityAlert},
		AttemptCount: 72,
		DetectedAt:   time.Now(),
		Identities:   []string{"1.2.3.4", "5.6.7.8"},
	}
	require.NoError(t, w.handleMessage(ctx, message(t, alert)))

	require.Len(t, dispatcher.confirmations, 1)
	assert.Equal(t, int64(7), dispatcher.confirmations[0].OrderID)
	require.Len(t, dispatcher.alerts, 1)
	assert.Equal(t, 72, dispatcher.alerts[0].AttemptCount)
	assert.Empty(t, dispatcher.notices)
}

func TestHandleMessageUnknownTypeIsDropped(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	w := &NotificationWorker{dispatcher: dispatcher, logger: zap.NewNop()}

	msg := kafka.Message{Value: []byte(`{"event_id":"e3","event_type":"SOMETHING_ELSE"}`)}
	assert.NoError(t, w.handleMessage(context.Background(), msg),
		"unknown types are logged, not retried forever")
}

func TestHandleMessageBadPayloadIsAnError(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	w := &NotificationWorker{dispatcher: dispatcher, logger: zap.NewNop()}

	msg := kafka.Message{Value: []byte(`not json`)}
	assert.Error(t, w.handleMessage(context.Background(), msg))
}
