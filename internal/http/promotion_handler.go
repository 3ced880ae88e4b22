package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/promotion"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PromotionService interface {
	Apply(ctx context.Context, customerID string, req promotion.ApplyRequest) (*promotion.ApplyResult, error)
	Create(ctx context.Context, p *domain.Promotion) (*domain.Promotion, error)
	Update(ctx context.Context, p *domain.Promotion) (*domain.Promotion, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Promotion, error)
	List(ctx context.Context) ([]*domain.Promotion, error)
	ListActive(ctx context.Context) ([]*domain.Promotion, error)
}

type PromotionHandler struct {
	promotions PromotionService
	timeout    time.Duration
	logger     *zap.Logger
}

func NewPromotionHandler(promotions PromotionService, timeout time.Duration, logger *zap.Logger) *PromotionHandler {
	return &PromotionHandler{
		promotions: promotions,
		timeout:    timeout,
		logger:     logger,
	}
}

// POST /api/promotions/apply
func (h *PromotionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req promotion.ApplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	result, err := h.promotions.Apply(ctx, customerIDFromContext(r.Context()), req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	message := "promotion applied"
	if !result.Applied {
		message = "promotion not applied: " + result.Reason
	}
	respondJSON(w, http.StatusOK, message, result)
}

// GET /api/promotions lists the promotions customers can use right now.
func (h *PromotionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	promotions, err := h.promotions.ListActive(ctx)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if promotions == nil {
		promotions = []*domain.Promotion{}
	}
	respondJSON(w, http.StatusOK, "promotions retrieved", promotions)
}

// GET /api/promotions/all
func (h *PromotionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	promotions, err := h.promotions.List(ctx)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if promotions == nil {
		promotions = []*domain.Promotion{}
	}
	respondJSON(w, http.StatusOK, "promotions retrieved", promotions)
}

// GET /api/promotions/{id}
func (h *PromotionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	p, err := h.promotions.Get(ctx, id)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "promotion retrieved", p)
}

// POST /api/promotions
func (h *PromotionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var p domain.Promotion
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ID = uuid.Nil
	p.UsedCount = 0

	created, err := h.promotions.Create(ctx, &p)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, "promotion created", created)
}

// PUT /api/promotions/{id}
func (h *PromotionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var p domain.Promotion
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ID = id

	updated, err := h.promotions.Update(ctx, &p)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "promotion updated", updated)
}

// DELETE /api/promotions/{id}
func (h *PromotionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.promotions.Delete(ctx, id); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "promotion deleted", nil)
}
