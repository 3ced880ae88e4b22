package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `id, customer_id, cart_owner, status, subtotal_amount, discount_amount,
	total_amount, promotion_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var promotionID uuid.NullUUID
	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.CartOwner,
		&order.Status,
		&order.SubtotalAmount,
		&order.DiscountAmount,
		&order.TotalAmount,
		&promotionID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if promotionID.Valid {
		order.PromotionID = &promotionID.UUID
	}
	return &order, nil
}

func orderEvent(order *domain.Order) domain.OrderEvent {
	return domain.OrderEvent{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		CartOwner:   order.CartOwner,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		PromotionID: order.PromotionID,
	}
}

// CreateOrder inserts the order, its items and an order.created outbox event atomically.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO orders (id, customer_id, cart_owner, status, subtotal_amount, discount_amount,
		          total_amount, promotion_id, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		          RETURNING created_at, updated_at`

		var promotionID uuid.NullUUID
		if order.PromotionID != nil {
			promotionID = uuid.NullUUID{UUID: *order.PromotionID, Valid: true}
		}

		err := tx.QueryRowContext(ctx, query,
			order.ID,
			order.CustomerID,
			order.CartOwner,
			order.Status,
			order.SubtotalAmount,
			order.DiscountAmount,
			order.TotalAmount,
			promotionID,
		).Scan(&order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		itemQuery := `INSERT INTO order_items (id, order_id, cart_item_id, variant_id, product_name, variant_name,
		              quantity, price_at_time, subtotal, position)
		              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		for i, item := range order.Items {
			_, err := tx.ExecContext(ctx, itemQuery,
				item.ID,
				order.ID,
				item.CartItemID,
				item.VariantID,
				item.ProductName,
				item.VariantName,
				item.Quantity,
				item.PriceAtTime,
				item.Subtotal,
				i,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		event := orderEvent(order)
		event.CartItemIDs = order.CartItemIDs()
		return insertOutboxEvent(ctx, tx, order.ID.String(), domain.EventOrderCreated, event)
	})
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	order.Shipping, err = r.GetShippingByOrderID(ctx, id)
	if err != nil && !errors.Is(err, ErrShippingNotFound) {
		return nil, err
	}
	order.Payment, err = r.GetPaymentByOrderID(ctx, id)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	return order, nil
}

func (r *Repository) ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by customer: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]string, len(orders))
	for i, o := range orders {
		byID[o.ID] = o
		ids[i] = o.ID.String()
		o.Items = make([]domain.OrderItem, 0)
	}

	query := `SELECT id, order_id, cart_item_id, variant_id, product_name, variant_name, quantity, price_at_time, subtotal
	          FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		var orderID uuid.UUID
		if err := rows.Scan(
			&item.ID,
			&orderID,
			&item.CartItemID,
			&item.VariantID,
			&item.ProductName,
			&item.VariantName,
			&item.Quantity,
			&item.PriceAtTime,
			&item.Subtotal,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

// UpdateStatus moves the order to status `to` only if its current status is one of
// `from`. The check and the write happen in a single statement. Cancelling also
// hands back the promotion usage the order held.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.OrderStatus, to domain.OrderStatus) (*domain.Order, error) {
	var updated *domain.Order
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE orders SET status = $1, updated_at = NOW()
		          WHERE id = $2 AND status = ANY($3)
		          RETURNING ` + orderColumns

		order, err := scanOrder(tx.QueryRowContext(ctx, query, to, id, pq.Array(statusStrings(from))))
		if errors.Is(err, sql.ErrNoRows) {
			return r.transitionFailure(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		updated = order

		eventType := domain.EventOrderStatus
		if to == domain.OrderStatusCancelled {
			eventType = domain.EventOrderCancelled
			if err := releasePromotion(ctx, tx, id); err != nil {
				return err
			}
		}
		return insertOutboxEvent(ctx, tx, id.String(), eventType, orderEvent(order))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmOrder attaches shipping and payment to a draft order and moves it to pending.
func (r *Repository) ConfirmOrder(ctx context.Context, id uuid.UUID, shipping *domain.Shipping, payment *domain.Payment) (*domain.Order, error) {
	var confirmed *domain.Order
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE orders SET status = $1, updated_at = NOW()
		          WHERE id = $2 AND status = $3
		          RETURNING ` + orderColumns

		order, err := scanOrder(tx.QueryRowContext(ctx, query, domain.OrderStatusPending, id, domain.OrderStatusDraft))
		if errors.Is(err, sql.ErrNoRows) {
			return r.transitionFailure(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("confirm order: %w", err)
		}

		shipping.OrderID = id
		shippingQuery := `INSERT INTO shippings (id, order_id, recipient_name, phone, address, method, fee, status,
		                  tracking_number, created_at, updated_at)
		                  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		                  RETURNING created_at, updated_at`
		err = tx.QueryRowContext(ctx, shippingQuery,
			shipping.ID,
			shipping.OrderID,
			shipping.RecipientName,
			shipping.Phone,
			shipping.Address,
			shipping.Method,
			shipping.Fee,
			shipping.Status,
			shipping.TrackingNumber,
		).Scan(&shipping.CreatedAt, &shipping.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert shipping: %w", err)
		}

		payment.OrderID = id
		paymentQuery := `INSERT INTO payments (id, order_id, method, amount, status, transaction_ref, created_at, updated_at)
		                 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		                 RETURNING created_at, updated_at`
		err = tx.QueryRowContext(ctx, paymentQuery,
			payment.ID,
			payment.OrderID,
			payment.Method,
			payment.Amount,
			payment.Status,
			payment.TransactionRef,
		).Scan(&payment.CreatedAt, &payment.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		order.Shipping = shipping
		order.Payment = payment
		confirmed = order
		return insertOutboxEvent(ctx, tx, id.String(), domain.EventOrderConfirmed, orderEvent(order))
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// transitionFailure tells a missing order apart from one in the wrong status.
func (r *Repository) transitionFailure(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	var status domain.OrderStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("query order status: %w", err)
	}
	return fmt.Errorf("%w: order is %s", ErrInvalidTransition, status)
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
