// Package promotion computes promotion discounts and redeems promotions against orders.
package promotion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/orders/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrInactive       = errors.New("promotion is not active")
	ErrDeleted        = errors.New("promotion has been deleted")
	ErrExpired        = errors.New("promotion has expired")
	ErrNotStarted     = errors.New("promotion has not started yet")
	ErrBelowMinimum   = errors.New("order total is below the promotion minimum purchase amount")
	ErrUsageExhausted = r.ErrPromotionExhausted

	ErrInvalidPromotion = errors.New("invalid promotion")
)

var hundred = decimal.NewFromInt(100)

// Outcome is the result of evaluating a promotion against an order total.
// When Applied is false, Total equals the input total and Reason says why.
type Outcome struct {
	Total    decimal.Decimal
	Discount decimal.Decimal
	Applied  bool
	Reason   error
}

// Evaluate applies p to total at instant now. It never mutates p.
func Evaluate(p *domain.Promotion, total decimal.Decimal, now time.Time) Outcome {
	if err := Eligible(p, total, now); err != nil {
		return Outcome{Total: total, Discount: decimal.Zero, Reason: err}
	}

	result := total.Sub(discountFor(p, total))
	if result.IsNegative() {
		result = decimal.Zero
	}
	result = result.Round(2)

	return Outcome{
		Total:    result,
		Discount: total.Sub(result),
		Applied:  true,
	}
}

// Eligible reports why p cannot be applied to total at now, or nil.
func Eligible(p *domain.Promotion, total decimal.Decimal, now time.Time) error {
	switch {
	case p.IsDeleted:
		return ErrDeleted
	case !p.IsActive:
		return ErrInactive
	case now.Before(p.StartDate):
		return ErrNotStarted
	case now.After(p.EndDate):
		return ErrExpired
	case total.LessThan(p.MinimumPurchaseAmount):
		return ErrBelowMinimum
	case p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit:
		return ErrUsageExhausted
	}
	return nil
}

func discountFor(p *domain.Promotion, total decimal.Decimal) decimal.Decimal {
	if p.DiscountType == domain.DiscountTypeFixedAmount {
		return p.DiscountValue
	}

	discount := total.Mul(p.DiscountValue).Div(hundred)
	if p.MaximumDiscountAmount.Valid && p.MaximumDiscountAmount.Decimal.IsPositive() {
		discount = decimal.Min(discount, p.MaximumDiscountAmount.Decimal)
	}
	return discount
}

// Validate checks a promotion definition before it is stored.
func Validate(p *domain.Promotion) error {
	var problems []string

	if strings.TrimSpace(p.Code) == "" {
		problems = append(problems, "code is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !p.DiscountType.Valid() {
		problems = append(problems, "discount_type must be percentage or fixed_amount")
	}
	if !p.DiscountValue.IsPositive() {
		problems = append(problems, "discount_value must be positive")
	}
	if p.DiscountType == domain.DiscountTypePercentage && p.DiscountValue.GreaterThan(hundred) {
		problems = append(problems, "percentage discount cannot exceed 100")
	}
	if p.MinimumPurchaseAmount.IsNegative() {
		problems = append(problems, "minimum_purchase_amount cannot be negative")
	}
	if p.MaximumDiscountAmount.Valid && p.MaximumDiscountAmount.Decimal.IsNegative() {
		problems = append(problems, "maximum_discount_amount cannot be negative")
	}
	if p.UsageLimit != nil && *p.UsageLimit < 1 {
		problems = append(problems, "usage_limit must be at least 1")
	}
	if p.PerCustomerLimit != nil && *p.PerCustomerLimit < 1 {
		problems = append(problems, "per_customer_limit must be at least 1")
	}
	if !p.EndDate.After(p.StartDate) {
		problems = append(problems, "end_date must be after start_date")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPromotion, strings.Join(problems, "; "))
	}
	return nil
}
