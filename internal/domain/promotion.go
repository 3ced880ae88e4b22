package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "percentage"
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

func (t DiscountType) Valid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixedAmount
}

// Promotion is a time-boxed discount rule applicable to an order total.
// A nil limit means unlimited; a null maximum discount means uncapped.
type Promotion struct {
	ID                    uuid.UUID           `json:"id"`
	Code                  string              `json:"code"`
	Name                  string              `json:"name"`
	Description           string              `json:"description,omitempty"`
	DiscountType          DiscountType        `json:"discount_type"`
	DiscountValue         decimal.Decimal     `json:"discount_value"`
	MinimumPurchaseAmount decimal.Decimal     `json:"minimum_purchase_amount"`
	MaximumDiscountAmount decimal.NullDecimal `json:"maximum_discount_amount"`
	UsageLimit            *int                `json:"usage_limit,omitempty"`
	PerCustomerLimit      *int                `json:"per_customer_limit,omitempty"`
	UsedCount             int                 `json:"used_count"`
	StartDate             time.Time           `json:"start_date"`
	EndDate               time.Time           `json:"end_date"`
	IsActive              bool                `json:"is_active"`
	IsDeleted             bool                `json:"-"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// PromotionRedemption records a promotion applied to an order.
type PromotionRedemption struct {
	PromotionID    uuid.UUID
	OrderID        uuid.UUID
	CustomerID     string
	ExpectedTotal  decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}
