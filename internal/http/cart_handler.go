package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	GetCartView(ctx context.Context, owner string) (*domain.CartView, error)
	AddToCart(ctx context.Context, owner string, variantID int64, quantity int) (*domain.Cart, error)
	UpdateCartItem(ctx context.Context, owner, itemID string, quantity int) (*domain.Cart, error)
	RemoveCartItem(ctx context.Context, owner, itemID string) error
	ClearCart(ctx context.Context, owner string) error
	MergeCarts(ctx context.Context, from, to string) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// GET /api/carts
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, err := cartOwner(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	view, err := h.carts.GetCartView(ctx, owner)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "cart retrieved", view)
}

// POST /api/carts
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, err := cartOwner(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VariantID <= 0 {
		respondError(w, http.StatusBadRequest, "variant_id must be positive")
		return
	}

	if _, err := h.carts.AddToCart(ctx, owner, req.VariantID, req.Quantity); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondView(ctx, w, r, http.StatusCreated, "item added to cart", owner)
}

// PUT /api/carts/{id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, err := cartOwner(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.carts.UpdateCartItem(ctx, owner, chi.URLParam(r, "id"), req.Quantity); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondView(ctx, w, r, http.StatusOK, "cart item updated", owner)
}

// DELETE /api/carts/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, err := cartOwner(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := h.carts.RemoveCartItem(ctx, owner, chi.URLParam(r, "id")); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondView(ctx, w, r, http.StatusOK, "cart item removed", owner)
}

// DELETE /api/carts
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, err := cartOwner(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := h.carts.ClearCart(ctx, owner); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "cart cleared", nil)
}

// POST /api/carts/merge folds the guest cart of X-Session-ID into the customer's cart.
func (h *CartHandler) MergeCarts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session := sessionIDFromContext(r.Context())
	if session == "" {
		respondError(w, http.StatusBadRequest, SessionHeader+" header is required")
		return
	}
	owner := domain.CustomerOwner(customerIDFromContext(r.Context()))

	if _, err := h.carts.MergeCarts(ctx, domain.GuestOwner(session), owner); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondView(ctx, w, r, http.StatusOK, "carts merged", owner)
}

func (h *CartHandler) respondView(ctx context.Context, w http.ResponseWriter, r *http.Request, status int, message, owner string) {
	view, err := h.carts.GetCartView(ctx, owner)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, status, message, view)
}
