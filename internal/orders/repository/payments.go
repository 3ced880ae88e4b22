package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const paymentColumns = `id, order_id, method, amount, status, transaction_ref, created_at, updated_at`

const shippingColumns = `id, order_id, recipient_name, phone, address, method, fee, status,
	tracking_number, created_at, updated_at`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Amount, &p.Status, &p.TransactionRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanShipping(row rowScanner) (*domain.Shipping, error) {
	var s domain.Shipping
	err := row.Scan(
		&s.ID,
		&s.OrderID,
		&s.RecipientName,
		&s.Phone,
		&s.Address,
		&s.Method,
		&s.Fee,
		&s.Status,
		&s.TrackingNumber,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return p, nil
}

// UpdatePaymentStatus records a gateway result and emits payment.updated.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status domain.PaymentStatus, transactionRef string) (*domain.Payment, error) {
	var updated *domain.Payment
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE payments SET status = $2, transaction_ref = $3, updated_at = NOW()
		          WHERE order_id = $1
		          RETURNING ` + paymentColumns
		p, err := scanPayment(tx.QueryRowContext(ctx, query, orderID, status, transactionRef))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		updated = p
		return insertOutboxEvent(ctx, tx, orderID.String(), domain.EventPaymentUpdated, p)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repository) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	query := `UPDATE payments SET method = $2, amount = $3, status = $4, transaction_ref = $5, updated_at = NOW()
	          WHERE order_id = $1
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, p.OrderID, p.Method, p.Amount, p.Status, p.TransactionRef).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPaymentNotFound
	}
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (r *Repository) DeletePayment(ctx context.Context, orderID uuid.UUID) error {
	return r.deleteByOrder(ctx, `DELETE FROM payments WHERE order_id = $1`, orderID, ErrPaymentNotFound)
}

func (r *Repository) GetShippingByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Shipping, error) {
	query := `SELECT ` + shippingColumns + ` FROM shippings WHERE order_id = $1`
	s, err := scanShipping(r.db.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShippingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query shipping: %w", err)
	}
	return s, nil
}

func (r *Repository) UpdateShipping(ctx context.Context, s *domain.Shipping) error {
	query := `UPDATE shippings SET recipient_name = $2, phone = $3, address = $4, method = $5, fee = $6,
	          status = $7, tracking_number = $8, updated_at = NOW()
	          WHERE order_id = $1
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		s.OrderID,
		s.RecipientName,
		s.Phone,
		s.Address,
		s.Method,
		s.Fee,
		s.Status,
		s.TrackingNumber,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrShippingNotFound
	}
	if err != nil {
		return fmt.Errorf("update shipping: %w", err)
	}
	return nil
}

func (r *Repository) DeleteShipping(ctx context.Context, orderID uuid.UUID) error {
	return r.deleteByOrder(ctx, `DELETE FROM shippings WHERE order_id = $1`, orderID, ErrShippingNotFound)
}

func (r *Repository) deleteByOrder(ctx context.Context, query string, orderID uuid.UUID, notFound error) error {
	res, err := r.db.ExecContext(ctx, query, orderID)
	if err != nil {
		return fmt.Errorf("delete by order %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete by order %s: %w", orderID, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
