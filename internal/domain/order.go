package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	CartItemID  string          `json:"cart_item_id"`
	VariantID   int64           `json:"variant_id"`
	ProductName string          `json:"product_name"`
	VariantName string          `json:"variant_name"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID             uuid.UUID       `json:"id"`
	CustomerID     string          `json:"customer_id"`
	CartOwner      string          `json:"-"`
	Status         OrderStatus     `json:"status"`
	Items          []OrderItem     `json:"items"`
	SubtotalAmount decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PromotionID    *uuid.UUID      `json:"promotion_id,omitempty"`
	Shipping       *Shipping       `json:"shipping,omitempty"`
	Payment        *Payment        `json:"payment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StockLines lists the variant quantities held by the order.
func (o *Order) StockLines() []StockLine {
	lines := make([]StockLine, len(o.Items))
	for i, item := range o.Items {
		lines[i] = StockLine{VariantID: item.VariantID, Quantity: item.Quantity}
	}
	return lines
}

// CartItemIDs lists the cart items the order was created from.
func (o *Order) CartItemIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if item.CartItemID != "" {
			ids = append(ids, item.CartItemID)
		}
	}
	return ids
}
