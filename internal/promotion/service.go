package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/orders/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	ErrOrderNotDraft    = errors.New("promotions can only be applied to draft orders")
	ErrMissingPromotion = errors.New("promotion id or code is required")
)

var tracer = otel.Tracer("storefront/promotion")

// Store is the persistence the promotion service needs.
type Store interface {
	CreatePromotion(ctx context.Context, p *domain.Promotion) error
	GetPromotion(ctx context.Context, id uuid.UUID) (*domain.Promotion, error)
	GetPromotionByCode(ctx context.Context, code string) (*domain.Promotion, error)
	ListPromotions(ctx context.Context) ([]*domain.Promotion, error)
	ListActivePromotions(ctx context.Context, now time.Time) ([]*domain.Promotion, error)
	UpdatePromotion(ctx context.Context, p *domain.Promotion) error
	DeletePromotion(ctx context.Context, id uuid.UUID) error
	RedeemPromotion(ctx context.Context, red *domain.PromotionRedemption, check func(*domain.Promotion) error) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type ApplyRequest struct {
	OrderID     uuid.UUID  `json:"order_id"`
	PromotionID *uuid.UUID `json:"promotion_id,omitempty"`
	Code        string     `json:"code,omitempty"`
}

// ApplyResult describes what happened to the order. A rejected promotion is not
// an error: Applied is false, Reason says why and the totals are unchanged.
type ApplyResult struct {
	OrderID        uuid.UUID       `json:"order_id"`
	PromotionID    uuid.UUID       `json:"promotion_id"`
	Applied        bool            `json:"applied"`
	Reason         string          `json:"reason,omitempty"`
	OriginalTotal  decimal.Decimal `json:"original_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Apply(ctx context.Context, customerID string, req ApplyRequest) (*ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "promotion.Apply")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID.String()))

	result, err := s.apply(ctx, customerID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("promotion.applied", result.Applied))
	return result, nil
}

func (s *Service) apply(ctx context.Context, customerID string, req ApplyRequest) (*ApplyResult, error) {
	p, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, r.ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusDraft {
		return nil, ErrOrderNotDraft
	}

	result := &ApplyResult{
		OrderID:        order.ID,
		PromotionID:    p.ID,
		OriginalTotal:  order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		TotalAmount:    order.TotalAmount,
	}

	if order.PromotionID != nil {
		result.Reason = r.ErrPromotionAlreadyApplied.Error()
		return result, nil
	}

	now := s.now()
	outcome := Evaluate(p, order.TotalAmount, now)
	if !outcome.Applied {
		result.Reason = outcome.Reason.Error()
		return result, nil
	}

	red := &domain.PromotionRedemption{
		PromotionID:    p.ID,
		OrderID:        order.ID,
		CustomerID:     customerID,
		ExpectedTotal:  order.TotalAmount,
		DiscountAmount: outcome.Discount,
		TotalAmount:    outcome.Total,
	}

	// re-evaluated against the locked row, the promotion may have changed since it was read
	recheck := func(locked *domain.Promotion) error {
		out := Evaluate(locked, red.ExpectedTotal, now)
		if !out.Applied {
			return out.Reason
		}
		red.DiscountAmount = out.Discount
		red.TotalAmount = out.Total
		return nil
	}

	updated, err := s.store.RedeemPromotion(ctx, red, recheck)
	if err != nil {
		if isRejection(err) {
			s.logger.Info("promotion rejected at redemption",
				zap.String("order_id", order.ID.String()),
				zap.String("promotion_id", p.ID.String()),
				zap.Error(err))
			result.Reason = err.Error()
			return result, nil
		}
		return nil, fmt.Errorf("failed to redeem promotion: %w", err)
	}

	s.logger.Info("promotion applied",
		zap.String("order_id", updated.ID.String()),
		zap.String("promotion_id", p.ID.String()),
		zap.String("discount", updated.DiscountAmount.String()))

	result.Applied = true
	result.DiscountAmount = updated.DiscountAmount
	result.TotalAmount = updated.TotalAmount
	return result, nil
}

func (s *Service) resolve(ctx context.Context, req ApplyRequest) (*domain.Promotion, error) {
	switch {
	case req.PromotionID != nil:
		return s.store.GetPromotion(ctx, *req.PromotionID)
	case strings.TrimSpace(req.Code) != "":
		return s.store.GetPromotionByCode(ctx, strings.TrimSpace(req.Code))
	default:
		return nil, ErrMissingPromotion
	}
}

func isRejection(err error) bool {
	for _, target := range []error{
		ErrInactive, ErrDeleted, ErrExpired, ErrNotStarted, ErrBelowMinimum, ErrUsageExhausted,
		r.ErrCustomerLimitReached, r.ErrPromotionAlreadyApplied,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) Create(ctx context.Context, p *domain.Promotion) (*domain.Promotion, error) {
	ctx, span := tracer.Start(ctx, "promotion.Create")
	defer span.End()

	p.Code = strings.TrimSpace(p.Code)
	if err := Validate(p); err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := s.store.CreatePromotion(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("promotion created", zap.String("promotion_id", p.ID.String()), zap.String("code", p.Code))
	return p, nil
}

func (s *Service) Update(ctx context.Context, p *domain.Promotion) (*domain.Promotion, error) {
	ctx, span := tracer.Start(ctx, "promotion.Update")
	defer span.End()

	p.Code = strings.TrimSpace(p.Code)
	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePromotion(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeletePromotion(ctx, id); err != nil {
		return err
	}
	s.logger.Info("promotion deleted", zap.String("promotion_id", id.String()))
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	return s.store.GetPromotion(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*domain.Promotion, error) {
	return s.store.ListPromotions(ctx)
}

// ListActive returns promotions currently usable by customers.
func (s *Service) ListActive(ctx context.Context) ([]*domain.Promotion, error) {
	return s.store.ListActivePromotions(ctx, s.now())
}
