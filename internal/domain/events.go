package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated     = "order.created"
	EventOrderConfirmed   = "order.confirmed"
	EventOrderCancelled   = "order.cancelled"
	EventOrderStatus      = "order.status_changed"
	EventPromotionApplied = "promotion.applied"
	EventPaymentUpdated   = "payment.updated"
)

// OrderEvent is the payload published for every order lifecycle change.
type OrderEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	CartOwner   string          `json:"cart_owner,omitempty"`
	CartItemIDs []string        `json:"cart_item_ids,omitempty"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PromotionID *uuid.UUID      `json:"promotion_id,omitempty"`
}
