package promotion

import (
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int {
	return &v
}

func activePromotion(discountType domain.DiscountType, value string) *domain.Promotion {
	return &domain.Promotion{
		Code:          "SPRING",
		Name:          "Spring sale",
		DiscountType:  discountType,
		DiscountValue: dec(value),
		StartDate:     now.AddDate(0, -1, 0),
		EndDate:       now.AddDate(0, 1, 0),
		IsActive:      true,
	}
}

func TestEvaluate_PercentageCappedByMaximum(t *testing.T) {
	p := activePromotion(domain.DiscountTypePercentage, "10")
	p.MaximumDiscountAmount = decimal.NewNullDecimal(dec("50000"))

	out := Evaluate(p, dec("1000000"), now)

	require.True(t, out.Applied)
	assert.True(t, dec("950000").Equal(out.Total), "got %s", out.Total)
	assert.True(t, dec("50000").Equal(out.Discount), "got %s", out.Discount)
}

func TestEvaluate_PercentageBelowCap(t *testing.T) {
	p := activePromotion(domain.DiscountTypePercentage, "10")
	p.MaximumDiscountAmount = decimal.NewNullDecimal(dec("50000"))

	out := Evaluate(p, dec("200000"), now)

	require.True(t, out.Applied)
	assert.True(t, dec("180000").Equal(out.Total), "got %s", out.Total)
}

func TestEvaluate_PercentageWithoutCap(t *testing.T) {
	p := activePromotion(domain.DiscountTypePercentage, "25")

	out := Evaluate(p, dec("1000000"), now)

	require.True(t, out.Applied)
	assert.True(t, dec("750000").Equal(out.Total), "got %s", out.Total)
}

func TestEvaluate_FixedAmountClampedAtZero(t *testing.T) {
	p := activePromotion(domain.DiscountTypeFixedAmount, "500000")

	out := Evaluate(p, dec("300000"), now)

	require.True(t, out.Applied)
	assert.True(t, out.Total.IsZero(), "got %s", out.Total)
	assert.True(t, dec("300000").Equal(out.Discount), "got %s", out.Discount)
}

func TestEvaluate_FixedAmount(t *testing.T) {
	p := activePromotion(domain.DiscountTypeFixedAmount, "20000")

	out := Evaluate(p, dec("150000"), now)

	require.True(t, out.Applied)
	assert.True(t, dec("130000").Equal(out.Total), "got %s", out.Total)
}

func TestEvaluate_RoundsToTwoDecimals(t *testing.T) {
	p := activePromotion(domain.DiscountTypePercentage, "33")

	out := Evaluate(p, dec("10.01"), now)

	require.True(t, out.Applied)
	// 10.01 - 3.3033 = 6.7067
	assert.Equal(t, "6.71", out.Total.StringFixed(2))
	assert.True(t, out.Total.Equal(out.Total.Round(2)))
}

func TestEvaluate_RejectionsLeaveTotalUnchanged(t *testing.T) {
	total := dec("400000")

	tests := []struct {
		name   string
		mutate func(p *domain.Promotion)
		want   error
	}{
		{"inactive", func(p *domain.Promotion) { p.IsActive = false }, ErrInactive},
		{"deleted", func(p *domain.Promotion) { p.IsDeleted = true }, ErrDeleted},
		{"expired", func(p *domain.Promotion) { p.EndDate = now.Add(-time.Hour) }, ErrExpired},
		{"not started", func(p *domain.Promotion) { p.StartDate = now.Add(time.Hour) }, ErrNotStarted},
		{"below minimum", func(p *domain.Promotion) { p.MinimumPurchaseAmount = dec("500000") }, ErrBelowMinimum},
		{"usage at limit", func(p *domain.Promotion) { p.UsageLimit = intPtr(5); p.UsedCount = 5 }, ErrUsageExhausted},
		{"usage over limit", func(p *domain.Promotion) { p.UsageLimit = intPtr(5); p.UsedCount = 9 }, ErrUsageExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := activePromotion(domain.DiscountTypePercentage, "10")
			tt.mutate(p)

			out := Evaluate(p, total, now)

			assert.False(t, out.Applied)
			assert.ErrorIs(t, out.Reason, tt.want)
			assert.True(t, total.Equal(out.Total))
			assert.True(t, out.Discount.IsZero())
		})
	}
}

func TestEvaluate_UsageBelowLimitApplies(t *testing.T) {
	p := activePromotion(domain.DiscountTypeFixedAmount, "1000")
	p.UsageLimit = intPtr(5)
	p.UsedCount = 4

	out := Evaluate(p, dec("5000"), now)

	assert.True(t, out.Applied)
	assert.True(t, dec("4000").Equal(out.Total))
}

func TestEvaluate_MinimumIsInclusive(t *testing.T) {
	p := activePromotion(domain.DiscountTypeFixedAmount, "1000")
	p.MinimumPurchaseAmount = dec("5000")

	out := Evaluate(p, dec("5000"), now)

	assert.True(t, out.Applied)
}

func TestValidate(t *testing.T) {
	p := activePromotion(domain.DiscountTypePercentage, "10")
	require.NoError(t, Validate(p))

	bad := activePromotion(domain.DiscountTypePercentage, "120")
	bad.Code = ""
	bad.EndDate = bad.StartDate
	bad.UsageLimit = intPtr(0)

	err := Validate(bad)
	require.ErrorIs(t, err, ErrInvalidPromotion)
	assert.Contains(t, err.Error(), "code is required")
	assert.Contains(t, err.Error(), "cannot exceed 100")
	assert.Contains(t, err.Error(), "end_date must be after start_date")
	assert.Contains(t, err.Error(), "usage_limit must be at least 1")
}
