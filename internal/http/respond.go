package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	cartrepo "github.com/fjod/storefront/internal/cart/repository"
	cartsvc "github.com/fjod/storefront/internal/cart/service"
	catalog "github.com/fjod/storefront/internal/catalog/repository"
	orderrepo "github.com/fjod/storefront/internal/orders/repository"
	ordersvc "github.com/fjod/storefront/internal/orders/service"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/promotion"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20 // 1MB

// Envelope wraps every response body.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	Meta       *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func newMeta(page, limit, total int) *Meta {
	if page < 1 {
		page = 1
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Meta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func respondJSON(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, Envelope{StatusCode: status, Message: message, Data: data})
}

func respondPage(w http.ResponseWriter, message string, data any, meta *Meta) {
	writeEnvelope(w, Envelope{StatusCode: http.StatusOK, Message: message, Data: data, Meta: meta})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, Envelope{StatusCode: status, Message: message})
}

func writeEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

var (
	notFoundErrors = []error{
		cartrepo.ErrItemNotFound, cartrepo.ErrCartNotFound,
		catalog.ErrProductNotFound, catalog.ErrVariantNotFound,
		orderrepo.ErrOrderNotFound, orderrepo.ErrPromotionNotFound,
		orderrepo.ErrPaymentNotFound, orderrepo.ErrShippingNotFound,
	}
	badRequestErrors = []error{
		cartsvc.ErrInvalidQuantity,
		ordersvc.ErrNoItems, ordersvc.ErrInvalidShipping, ordersvc.ErrInvalidPaymentMethod,
		ordersvc.ErrInvalidStatus, ordersvc.ErrNegativeShippingFee,
		promotion.ErrInvalidPromotion, promotion.ErrMissingPromotion,
		payment.ErrInvalidSignature, payment.ErrMalformedReturn, payment.ErrInvalidStatus,
		payment.ErrInvalidMethod, payment.ErrInvalidShipping, payment.ErrNegativeAmount,
	}
	conflictErrors = []error{
		catalog.ErrInsufficientStock, ordersvc.ErrVariantUnavailable,
		orderrepo.ErrInvalidTransition, orderrepo.ErrDuplicatePromotionCode, orderrepo.ErrUsageLimitBelowUsed,
		promotion.ErrOrderNotDraft,
		payment.ErrNotPayable, payment.ErrAlreadyPaid, payment.ErrAmountMismatch,
	}
)

func matches(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// handleError maps service errors to HTTP statuses. Unknown errors are logged and
// reported without detail.
func handleError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case matches(err, notFoundErrors):
		respondError(w, http.StatusNotFound, err.Error())
	case matches(err, badRequestErrors):
		respondError(w, http.StatusBadRequest, err.Error())
	case matches(err, conflictErrors):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		requestLogger(r, logger).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
