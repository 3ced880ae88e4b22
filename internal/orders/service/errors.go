package service

import "errors"

var (
	ErrNoItems              = errors.New("no cart items selected, nothing to order")
	ErrInvalidShipping      = errors.New("recipient name, phone and address are required")
	ErrInvalidPaymentMethod = errors.New("payment method must be cod or vnpay")
	ErrInvalidStatus        = errors.New("unknown order status")
	ErrNegativeShippingFee  = errors.New("shipping fee cannot be negative")
	ErrVariantUnavailable   = errors.New("variant is no longer available")
)
