package http

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentService interface {
	CreatePaymentURL(ctx context.Context, customerID string, orderID uuid.UUID, clientIP string) (string, error)
	HandleReturn(ctx context.Context, query url.Values) (*payment.ReturnResult, error)
	GetPayment(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, orderID uuid.UUID, in payment.PaymentUpdate) (*domain.Payment, error)
	DeletePayment(ctx context.Context, orderID uuid.UUID) error
	GetShipping(ctx context.Context, orderID uuid.UUID) (*domain.Shipping, error)
	UpdateShipping(ctx context.Context, orderID uuid.UUID, in payment.ShippingUpdate) (*domain.Shipping, error)
	DeleteShipping(ctx context.Context, orderID uuid.UUID) error
}

type PaymentHandler struct {
	payments PaymentService
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPaymentHandler(payments PaymentService, timeout time.Duration, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		timeout:  timeout,
		logger:   logger,
	}
}

type CreatePaymentRequestDTO struct {
	OrderID uuid.UUID `json:"order_id"`
}

type CreatePaymentResponseDTO struct {
	PaymentURL string `json:"payment_url"`
}

// clientIP prefers the address chi's RealIP middleware resolved into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// POST /api/payments/create
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreatePaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	paymentURL, err := h.payments.CreatePaymentURL(ctx, customerIDFromContext(r.Context()), req.OrderID, clientIP(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "payment url created", CreatePaymentResponseDTO{PaymentURL: paymentURL})
}

// GET /api/payments/vnpay-return
func (h *PaymentHandler) VNPayReturn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.payments.HandleReturn(ctx, r.URL.Query())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	message := "payment successful"
	if !result.Paid {
		message = "payment failed"
	}
	respondJSON(w, http.StatusOK, message, result)
}

// GET /api/payments/{orderId}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}

	p, err := h.payments.GetPayment(ctx, orderID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "payment retrieved", p)
}

// PUT /api/payments/{orderId}
func (h *PaymentHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}
	var req payment.PaymentUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.payments.UpdatePayment(ctx, orderID, req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "payment updated", p)
}

// DELETE /api/payments/{orderId}
func (h *PaymentHandler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}

	if err := h.payments.DeletePayment(ctx, orderID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "payment deleted", nil)
}

// GET /api/shippings/{orderId}
func (h *PaymentHandler) GetShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}

	s, err := h.payments.GetShipping(ctx, orderID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "shipping retrieved", s)
}

// PUT /api/shippings/{orderId}
func (h *PaymentHandler) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}
	var req payment.ShippingUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.payments.UpdateShipping(ctx, orderID, req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "shipping updated", s)
}

// DELETE /api/shippings/{orderId}
func (h *PaymentHandler) DeleteShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}

	if err := h.payments.DeleteShipping(ctx, orderID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "shipping deleted", nil)
}
