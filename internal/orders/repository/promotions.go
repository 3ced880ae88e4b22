package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const promotionColumns = `id, code, name, description, discount_type, discount_value, minimum_purchase_amount,
	maximum_discount_amount, usage_limit, per_customer_limit, used_count, start_date, end_date,
	is_active, is_deleted, created_at, updated_at`

func scanPromotion(row rowScanner) (*domain.Promotion, error) {
	var p domain.Promotion
	var usageLimit, perCustomerLimit sql.NullInt64
	err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Name,
		&p.Description,
		&p.DiscountType,
		&p.DiscountValue,
		&p.MinimumPurchaseAmount,
		&p.MaximumDiscountAmount,
		&usageLimit,
		&perCustomerLimit,
		&p.UsedCount,
		&p.StartDate,
		&p.EndDate,
		&p.IsActive,
		&p.IsDeleted,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.UsageLimit = intFromNull(usageLimit)
	p.PerCustomerLimit = intFromNull(perCustomerLimit)
	return &p, nil
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFromInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (r *Repository) CreatePromotion(ctx context.Context, p *domain.Promotion) error {
	query := `INSERT INTO promotions (id, code, name, description, discount_type, discount_value,
	          minimum_purchase_amount, maximum_discount_amount, usage_limit, per_customer_limit,
	          used_count, start_date, end_date, is_active, is_deleted, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12, $13, FALSE, NOW(), NOW())
	          RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.Code,
		p.Name,
		p.Description,
		p.DiscountType,
		p.DiscountValue,
		p.MinimumPurchaseAmount,
		p.MaximumDiscountAmount,
		nullFromInt(p.UsageLimit),
		nullFromInt(p.PerCustomerLimit),
		p.StartDate,
		p.EndDate,
		p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicatePromotionCode
	}
	if err != nil {
		return fmt.Errorf("insert promotion: %w", err)
	}
	p.UsedCount = 0
	return nil
}

func (r *Repository) GetPromotion(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`
	p, err := scanPromotion(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query promotion: %w", err)
	}
	return p, nil
}

// GetPromotionByCode ignores soft-deleted promotions.
func (r *Repository) GetPromotionByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE code = $1 AND NOT is_deleted`
	p, err := scanPromotion(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query promotion by code: %w", err)
	}
	return p, nil
}

func (r *Repository) ListPromotions(ctx context.Context) ([]*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE NOT is_deleted ORDER BY created_at DESC`
	return r.queryPromotions(ctx, query)
}

// ListActivePromotions returns promotions a customer could apply at now.
func (r *Repository) ListActivePromotions(ctx context.Context, now time.Time) ([]*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions
	          WHERE NOT is_deleted AND is_active AND start_date <= $1 AND end_date >= $1
	            AND (usage_limit IS NULL OR used_count < usage_limit)
	          ORDER BY end_date`
	return r.queryPromotions(ctx, query, now)
}

func (r *Repository) queryPromotions(ctx context.Context, query string, args ...any) ([]*domain.Promotion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query promotions: %w", err)
	}
	defer rows.Close()

	promotions := make([]*domain.Promotion, 0)
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promotions = append(promotions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return promotions, nil
}

// UpdatePromotion overwrites the editable fields. used_count is never touched here.
func (r *Repository) UpdatePromotion(ctx context.Context, p *domain.Promotion) error {
	query := `UPDATE promotions SET code = $2, name = $3, description = $4, discount_type = $5,
	          discount_value = $6, minimum_purchase_amount = $7, maximum_discount_amount = $8,
	          usage_limit = $9, per_customer_limit = $10, start_date = $11, end_date = $12,
	          is_active = $13, updated_at = NOW()
	          WHERE id = $1 AND NOT is_deleted
	          RETURNING used_count, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.Code,
		p.Name,
		p.Description,
		p.DiscountType,
		p.DiscountValue,
		p.MinimumPurchaseAmount,
		p.MaximumDiscountAmount,
		nullFromInt(p.UsageLimit),
		nullFromInt(p.PerCustomerLimit),
		p.StartDate,
		p.EndDate,
		p.IsActive,
	).Scan(&p.UsedCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPromotionNotFound
	}
	if isUniqueViolation(err) {
		return ErrDuplicatePromotionCode
	}
	if isCheckViolation(err, usageWithinLimit) {
		return ErrUsageLimitBelowUsed
	}
	if err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}
	return nil
}

// DeletePromotion soft-deletes so that orders referencing it stay intact.
func (r *Repository) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE promotions SET is_deleted = TRUE, is_active = FALSE, updated_at = NOW()
	          WHERE id = $1 AND NOT is_deleted`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	if n == 0 {
		return ErrPromotionNotFound
	}
	return nil
}

// lockPromotion loads a promotion with a row lock held for the rest of tx.
func lockPromotion(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1 FOR UPDATE`
	p, err := scanPromotion(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock promotion: %w", err)
	}
	return p, nil
}

// RedeemPromotion applies a promotion to a draft order. Usage counters, the
// per-customer usage row, the order totals and the outbox event are written in
// one transaction. check runs against the locked promotion row and may veto the
// redemption; it is how callers re-evaluate eligibility under the lock.
func (r *Repository) RedeemPromotion(ctx context.Context, red *domain.PromotionRedemption, check func(*domain.Promotion) error) (*domain.Order, error) {
	var redeemed *domain.Order
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		p, err := lockPromotion(ctx, tx, red.PromotionID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(p); err != nil {
				return err
			}
		}
		if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
			return ErrPromotionExhausted
		}

		if p.PerCustomerLimit != nil {
			var used int
			countQuery := `SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = $1 AND customer_id = $2`
			if err := tx.QueryRowContext(ctx, countQuery, p.ID, red.CustomerID).Scan(&used); err != nil {
				return fmt.Errorf("count customer usages: %w", err)
			}
			if used >= *p.PerCustomerLimit {
				return ErrCustomerLimitReached
			}
		}

		orderQuery := `UPDATE orders SET promotion_id = $2, discount_amount = $3, total_amount = $4, updated_at = NOW()
		               WHERE id = $1 AND promotion_id IS NULL AND status = $5 AND total_amount = $6
		               RETURNING ` + orderColumns
		order, err := scanOrder(tx.QueryRowContext(ctx, orderQuery,
			red.OrderID,
			red.PromotionID,
			red.DiscountAmount,
			red.TotalAmount,
			domain.OrderStatusDraft,
			red.ExpectedTotal,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPromotionAlreadyApplied
		}
		if err != nil {
			return fmt.Errorf("apply promotion to order: %w", err)
		}

		usageQuery := `UPDATE promotions SET used_count = used_count + 1, updated_at = NOW()
		               WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`
		res, err := tx.ExecContext(ctx, usageQuery, p.ID)
		if err != nil {
			return fmt.Errorf("increment promotion usage: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("increment promotion usage: %w", err)
		} else if n == 0 {
			return ErrPromotionExhausted
		}

		insertUsage := `INSERT INTO promotion_usages (id, promotion_id, customer_id, order_id, discount_amount, created_at)
		                VALUES ($1, $2, $3, $4, $5, NOW())`
		_, err = tx.ExecContext(ctx, insertUsage, uuid.New(), p.ID, red.CustomerID, red.OrderID, red.DiscountAmount)
		if isUniqueViolation(err) {
			return ErrPromotionAlreadyApplied
		}
		if err != nil {
			return fmt.Errorf("insert promotion usage: %w", err)
		}

		redeemed = order
		return insertOutboxEvent(ctx, tx, order.ID.String(), domain.EventPromotionApplied, orderEvent(order))
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

// CountCustomerUsages returns how many orders of customerID used the promotion.
// releasePromotion drops the usage row of a cancelled order and gives its slot back.
// Orders without a promotion are left alone.
func releasePromotion(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	var promotionID uuid.UUID
	err := tx.QueryRowContext(ctx,
		`DELETE FROM promotion_usages WHERE order_id = $1 RETURNING promotion_id`, orderID).Scan(&promotionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete promotion usage: %w", err)
	}

	query := `UPDATE promotions SET used_count = used_count - 1, updated_at = NOW()
	          WHERE id = $1 AND used_count > 0`
	if _, err := tx.ExecContext(ctx, query, promotionID); err != nil {
		return fmt.Errorf("release promotion usage: %w", err)
	}
	return nil
}

func (r *Repository) CountCustomerUsages(ctx context.Context, promotionID uuid.UUID, customerID string) (int, error) {
	var used int
	query := `SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = $1 AND customer_id = $2`
	if err := r.db.QueryRowContext(ctx, query, promotionID, customerID).Scan(&used); err != nil {
		return 0, fmt.Errorf("count customer usages: %w", err)
	}
	return used, nil
}
