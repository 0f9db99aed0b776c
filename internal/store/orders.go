package store

import (
	"context"
	"database/sql"
	"fmt"

	"ticket-service/internal/models"
)

// CreateOrderWithItems persists an order and all its line items in one
// transaction. Either everything is written or nothing is.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (recital_id, customer_email, customer_name, total_amount_cents, payment_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, query,
		order.RecitalID, order.CustomerEmail, order.CustomerName,
		order.TotalAmountCents, order.PaymentStatus, order.Notes); err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, ticket_type_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.GetContext(ctx, &items[i].ID, itemQuery,
			items[i].OrderID, items[i].TicketTypeID, items[i].Quantity, items[i].UnitPriceCents); err != nil {
			return 0, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit order: %w", err)
	}
	return order.ID, nil
}

// GetOrderByID retrieves an order by ID. Returns nil when it does not exist.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates an order's payment status and, when paymentRef
// is non-empty, stores the external payment reference. Returns false when
// no row matched.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status, paymentRef string) (bool, error) {
	var res sql.Result
	var err error
	if paymentRef != "" {
		res, err = s.db.ExecContext(ctx,
			"UPDATE orders SET payment_status = $1, payment_ref = $2, updated_at = NOW() WHERE id = $3",
			status, paymentRef, orderID)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
			status, orderID)
	}
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// ListRecentOrders retrieves the most recent orders for the admin view
func (s *Store) ListRecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC LIMIT $1", limit)
	return orders, err
}
