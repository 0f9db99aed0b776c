package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-service/internal/gateway"
	"ticket-service/internal/models"
	"ticket-service/internal/ratelimit"
	"ticket-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderLedger is the persistence contract the settlement service needs.
// CreateOrderWithItems must be atomic: the order and all its items are
// persisted together or not at all.
type OrderLedger interface {
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) (int64, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status, paymentRef string) (bool, error)
	GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error)
	GetRecitalByID(ctx context.Context, id int64) (*models.Recital, error)
	ListRecentOrders(ctx context.Context, limit int) ([]models.Order, error)
}

// Notifier delivers buyer confirmations and operator notices. Both are
// fire-and-forget: failures are logged and never affect the settlement
// outcome.
type Notifier interface {
	SendConfirmation(ctx context.Context, order *models.Order) error
	SendOperatorNotice(ctx context.Context, order *models.Order) error
}

// SettlementService drives an order through its payment lifecycle:
// admission control, order creation, the gateway charge, and the status
// transition that records the outcome.
type SettlementService struct {
	ledger   OrderLedger
	gateway  gateway.Client
	notifier Notifier
	limiter  ratelimit.AttemptLimiter
	detector *ratelimit.Detector
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

// NewSettlementService creates a new settlement service. now may be nil.
func NewSettlementService(
	ledger OrderLedger,
	gw gateway.Client,
	notifier Notifier,
	limiter ratelimit.AttemptLimiter,
	detector *ratelimit.Detector,
	currency string,
	now func() time.Time,
) *SettlementService {
	if now == nil {
		now = time.Now
	}
	return &SettlementService{
		ledger:   ledger,
		gateway:  gw,
		notifier: notifier,
		limiter:  limiter,
		detector: detector,
		currency: currency,
		logger:   util.GetLogger(),
		now:      now,
	}
}

// ItemRequest is one ticket line in a payment request
type ItemRequest struct {
	TicketTypeID   int64 `json:"ticket_type_id" binding:"required"`
	Quantity       int   `json:"quantity" binding:"required,min=1"`
	UnitPriceCents int64 `json:"unit_price_cents" binding:"min=0"`
}

// PaymentRequest is the body of POST /process-payment
type PaymentRequest struct {
	SourceToken   string        `json:"source_token" binding:"required"`
	AmountCents   int64         `json:"amount_cents" binding:"required,min=1"`
	Currency      string        `json:"currency"`
	CustomerEmail string        `json:"customer_email" binding:"required,email"`
	CustomerName  string        `json:"customer_name" binding:"required"`
	RecitalID     int64         `json:"recital_id" binding:"required"`
	Items         []ItemRequest `json:"items" binding:"required,min=1"`
	Notes         string        `json:"notes"`
}

// RetryRequest is the body of POST /api/retry-payment
type RetryRequest struct {
	OrderID     int64  `json:"order_id" binding:"required"`
	SourceToken string `json:"source_token" binding:"required"`
}

// SettlementResult is the outcome of a charge attempt. OrderID is set
// whenever an order exists, so a caller can always offer retry.
type SettlementResult struct {
	Success     bool     `json:"success"`
	OrderID     int64    `json:"order_id,omitempty"`
	PaymentID   string   `json:"payment_id,omitempty"`
	Status      string   `json:"status,omitempty"`
	ReceiptURL  string   `json:"receipt_url,omitempty"`
	Message     string   `json:"message"`
	Errors      []string `json:"errors,omitempty"`
	RateLimited bool     `json:"rate_limited,omitempty"`
}

// ProcessPayment is the full settlement flow for a new purchase: admission
// check, attempt recording, order creation, then the charge. A denied
// attempt is resolved here into a rate-limited result and never reaches the
// ledger or the gateway.
func (s *SettlementService) ProcessPayment(ctx context.Context, identity string, req *PaymentRequest) (*SettlementResult, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.ProcessPayment")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	result, err := s.admit(ctx, identity)
	if err != nil || result != nil {
		return result, err
	}

	orderID, err := s.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.ChargeOrder(ctx, orderID, req.SourceToken)
}

// RetryPayment re-runs the charge for an existing order. Retries pass
// through the same admission control as first attempts.
func (s *SettlementService) RetryPayment(ctx context.Context, identity string, req *RetryRequest) (*SettlementResult, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.RetryPayment")
	defer span.End()

	result, err := s.admit(ctx, identity)
	if err != nil || result != nil {
		return result, err
	}

	return s.RetryCharge(ctx, req.OrderID, req.SourceToken)
}

// admit runs the rate limiter and records the attempt when it is allowed.
// A non-nil result means the attempt was denied. Limiter backend failures
// admit the attempt: losing the abuse counters must not take down ticket
// sales.
func (s *SettlementService) admit(ctx context.Context, identity string) (*SettlementResult, error) {
	decision, err := s.limiter.Admit(ctx, identity)
	if err != nil {
		s.logger.Warn("Attempt limiter unavailable, admitting", zap.Error(err))
		decision = ratelimit.Decision{Allowed: true}
	}

	if !decision.Allowed {
		util.RateLimitRejectionsTotal.WithLabelValues(decision.Window.String()).Inc()
		s.logger.Info("Payment attempt rate limited",
			zap.String("identity", identity),
			zap.Duration("window", decision.Window))
		return &SettlementResult{
			Success:     false,
			RateLimited: true,
			Message:     decision.Message,
		}, nil
	}

	now := s.now()
	if err := s.limiter.Record(ctx, identity, now); err != nil {
		s.logger.Warn("Failed to record attempt", zap.Error(err))
	}
	s.detector.Record(ctx, identity, now)
	util.PaymentAttemptsTotal.Inc()
	return nil, nil
}

// CreateOrder validates the request, checks the recital exists, and
// persists the order with its items atomically in status processing. The
// declared total must equal the sum of line totals; the mismatch guard
// catches caller bugs, not price changes.
func (s *SettlementService) CreateOrder(ctx context.Context, req *PaymentRequest) (int64, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.CreateOrder")
	defer span.End()

	if len(req.Items) == 0 {
		return 0, &ValidationError{Reason: "order has no items"}
	}
	if req.Currency != "" && req.Currency != s.currency {
		return 0, &ValidationError{Reason: fmt.Sprintf("unsupported currency %q", req.Currency)}
	}

	var total int64
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return 0, &ValidationError{Reason: fmt.Sprintf("ticket type %d has non-positive quantity", item.TicketTypeID)}
		}
		total += item.UnitPriceCents * int64(item.Quantity)
	}
	if total != req.AmountCents {
		return 0, &ValidationError{
			Reason: fmt.Sprintf("declared total %d does not match item total %d", req.AmountCents, total),
		}
	}

	recital, err := s.ledger.GetRecitalByID(ctx, req.RecitalID)
	if err != nil {
		return 0, &PersistenceError{Op: "recital lookup", Err: err}
	}
	if recital == nil {
		return 0, &NotFoundError{Kind: "recital", ID: req.RecitalID}
	}

	order := &models.Order{
		RecitalID:        req.RecitalID,
		CustomerEmail:    req.CustomerEmail,
		CustomerName:     req.CustomerName,
		TotalAmountCents: total,
		PaymentStatus:    models.PaymentStatusProcessing,
		Notes:            req.Notes,
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderItem{
			TicketTypeID:   item.TicketTypeID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	orderID, err := s.ledger.CreateOrderWithItems(ctx, order, items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return 0, &PersistenceError{Op: "create order", Err: err}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", orderID),
		zap.Int64("recital_id", req.RecitalID),
		zap.Int64("total_cents", total))
	return orderID, nil
}

// ChargeOrder charges an existing order with a fresh idempotency key and
// records the outcome as a status transition.
func (s *SettlementService) ChargeOrder(ctx context.Context, orderID int64, sourceToken string) (*SettlementResult, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.ChargeOrder")
	defer span.End()

	order, err := s.ledger.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, &PersistenceError{Op: "order lookup", Err: err}
	}
	if order == nil {
		return nil, &NotFoundError{Kind: "order", ID: orderID}
	}

	return s.charge(ctx, order, sourceToken)
}

// RetryCharge re-charges an order that is processing or failed. Completed
// orders can never be retried. Processing is retryable on purpose: a crash
// between the gateway call and the status update leaves exactly that state.
func (s *SettlementService) RetryCharge(ctx context.Context, orderID int64, sourceToken string) (*SettlementResult, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.RetryCharge")
	defer span.End()

	order, err := s.ledger.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, &PersistenceError{Op: "order lookup", Err: err}
	}
	if order == nil {
		return nil, &NotFoundError{Kind: "order", ID: orderID}
	}

	if !models.Retryable(order.PaymentStatus) {
		return nil, &InvalidStateError{
			OrderID: order.ID,
			Status:  order.PaymentStatus,
			Reason:  "cannot be retried",
		}
	}

	util.PaymentRetriesTotal.Inc()

	if order.PaymentStatus == models.PaymentStatusFailed {
		if _, err := s.ledger.UpdateOrderStatus(ctx, order.ID, models.PaymentStatusProcessing, ""); err != nil {
			return nil, &PersistenceError{Op: "mark processing", Err: err}
		}
		order.PaymentStatus = models.PaymentStatusProcessing
	}

	return s.charge(ctx, order, sourceToken)
}

// charge runs one gateway attempt for an order already in processing.
// Every call uses a new idempotency key, retries included. Panics are
// contained here: the order is forced to failed before the error surfaces,
// so the caller always holds something retryable instead of an order stuck
// in processing.
func (s *SettlementService) charge(ctx context.Context, order *models.Order, sourceToken string) (result *SettlementResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during charge, forcing order to failed",
				zap.Int64("order_id", order.ID),
				zap.Any("panic", r))
			s.forceFailed(order.ID, "internal_error")
			result = nil
			err = fmt.Errorf("%w: order %d: %v", ErrChargePanic, order.ID, r)
		}
	}()

	idempotencyKey := uuid.New().String()
	note := fmt.Sprintf("SSWPA tickets - order %d for %s", order.ID, order.CustomerName)
	if len(note) > gateway.NoteLimit {
		note = note[:gateway.NoteLimit]
	}

	charged, gwErr := s.gateway.Charge(ctx, gateway.ChargeRequest{
		SourceToken:      sourceToken,
		IdempotencyKey:   idempotencyKey,
		AmountMinorUnits: order.TotalAmountCents,
		Currency:         s.currency,
		BuyerEmail:       order.CustomerEmail,
		Note:             note,
	})
	if gwErr != nil {
		return s.settleFailure(ctx, order, gwErr)
	}

	return s.settleSuccess(ctx, order, charged)
}

func (s *SettlementService) settleSuccess(ctx context.Context, order *models.Order, charged *gateway.ChargeResult) (*SettlementResult, error) {
	updated, err := s.ledger.UpdateOrderStatus(ctx, order.ID, models.PaymentStatusCompleted, charged.PaymentID)
	if err != nil || !updated {
		// The charge was captured; failing the request now would invite a
		// double charge via retry. Report success and leave recovery to the
		// operator, who has the payment reference from this log line.
		s.logger.Error("Charge captured but status update failed",
			zap.Int64("order_id", order.ID),
			zap.String("payment_id", charged.PaymentID),
			zap.Error(err))
	}

	order.PaymentStatus = models.PaymentStatusCompleted
	order.PaymentRef.String = charged.PaymentID
	order.PaymentRef.Valid = true

	util.PaymentSuccessTotal.Inc()
	s.logger.Info("Payment completed",
		zap.Int64("order_id", order.ID),
		zap.String("payment_id", charged.PaymentID))

	if err := s.notifier.SendConfirmation(ctx, order); err != nil {
		s.logger.Error("Failed to send buyer confirmation", zap.Error(err))
	}
	if err := s.notifier.SendOperatorNotice(ctx, order); err != nil {
		s.logger.Error("Failed to send operator notice", zap.Error(err))
	}

	return &SettlementResult{
		Success:    true,
		OrderID:    order.ID,
		PaymentID:  charged.PaymentID,
		Status:     models.PaymentStatusCompleted,
		ReceiptURL: charged.ReceiptURL,
		Message:    "Payment completed",
	}, nil
}

// settleFailure transitions the order to failed and reports the gateway's
// error details. Gateway failures are a normal outcome here, not a fault:
// they never propagate as errors, because an unhandled fault would strand
// the order.
func (s *SettlementService) settleFailure(ctx context.Context, order *models.Order, gwErr error) (*SettlementResult, error) {
	var declined *gateway.DeclinedError
	var details []string
	reason := "gateway_error"
	if errors.As(gwErr, &declined) {
		details = declined.Details
		reason = "declined"
	} else {
		details = []string{gwErr.Error()}
	}

	if _, err := s.ledger.UpdateOrderStatus(ctx, order.ID, models.PaymentStatusFailed, ""); err != nil {
		s.logger.Error("Failed to mark order failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	util.PaymentFailedTotal.WithLabelValues(reason).Inc()
	util.OrdersFailedTotal.WithLabelValues(reason).Inc()
	s.logger.Warn("Payment failed",
		zap.Int64("order_id", order.ID),
		zap.Error(&GatewayError{Details: details, Err: gwErr}))

	return &SettlementResult{
		Success: false,
		OrderID: order.ID,
		Status:  models.PaymentStatusFailed,
		Message: "Payment failed",
		Errors:  details,
	}, nil
}

// forceFailed marks an order failed outside the request context, used when
// containing a panic.
func (s *SettlementService) forceFailed(orderID int64, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.ledger.UpdateOrderStatus(ctx, orderID, models.PaymentStatusFailed, ""); err != nil {
		s.logger.Error("Failed to force order to failed",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
	util.OrdersFailedTotal.WithLabelValues(reason).Inc()
}

// GetOrder retrieves an order by ID
func (s *SettlementService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.ledger.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, &PersistenceError{Op: "order lookup", Err: err}
	}
	if order == nil {
		return nil, &NotFoundError{Kind: "order", ID: orderID}
	}
	return order, nil
}

// ListRecentOrders retrieves the most recent orders for the admin view
func (s *SettlementService) ListRecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	orders, err := s.ledger.ListRecentOrders(ctx, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}
