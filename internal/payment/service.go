package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/orders/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotPayable      = errors.New("order is not awaiting an online payment")
	ErrAlreadyPaid     = errors.New("order is already paid")
	ErrAmountMismatch  = errors.New("paid amount does not match the order")
	ErrInvalidStatus   = errors.New("unknown payment status")
	ErrInvalidMethod   = errors.New("payment method must be cod or vnpay")
	ErrInvalidShipping = errors.New("recipient name, phone and address are required")
	ErrNegativeAmount  = errors.New("amounts cannot be negative")
)

// Store is the payment and shipping persistence, shared with orders.
type Store interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status domain.PaymentStatus, transactionRef string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p *domain.Payment) error
	DeletePayment(ctx context.Context, orderID uuid.UUID) error
	GetShippingByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Shipping, error)
	UpdateShipping(ctx context.Context, s *domain.Shipping) error
	DeleteShipping(ctx context.Context, orderID uuid.UUID) error
}

type Gateway interface {
	PaymentURL(req PaymentRequest) (string, error)
	VerifyReturn(query url.Values) (*ReturnResult, error)
}

// PaymentUpdate holds the fields an administrator may change. Nil fields are kept.
type PaymentUpdate struct {
	Method         *domain.PaymentMethod `json:"method,omitempty"`
	Amount         *decimal.Decimal      `json:"amount,omitempty"`
	Status         *domain.PaymentStatus `json:"status,omitempty"`
	TransactionRef *string               `json:"transaction_ref,omitempty"`
}

type ShippingUpdate struct {
	RecipientName  *string          `json:"recipient_name,omitempty"`
	Phone          *string          `json:"phone,omitempty"`
	Address        *string          `json:"address,omitempty"`
	Method         *string          `json:"method,omitempty"`
	Fee            *decimal.Decimal `json:"fee,omitempty"`
	Status         *string          `json:"status,omitempty"`
	TrackingNumber *string          `json:"tracking_number,omitempty"`
}

type Service struct {
	store   Store
	gateway Gateway
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(store Store, gateway Gateway, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

// CreatePaymentURL returns the gateway redirect for a confirmed order paid online.
func (s *Service) CreatePaymentURL(ctx context.Context, customerID string, orderID uuid.UUID, clientIP string) (string, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.CustomerID != customerID {
		return "", r.ErrOrderNotFound
	}

	p := order.Payment
	if p == nil || order.Status != domain.OrderStatusPending || p.Method != domain.PaymentMethodVNPay {
		return "", ErrNotPayable
	}
	if p.Status == domain.PaymentStatusPaid {
		return "", ErrAlreadyPaid
	}

	paymentURL, err := s.gateway.PaymentURL(PaymentRequest{
		OrderID:   order.ID,
		Amount:    p.Amount,
		OrderInfo: "Payment for order " + order.ID.String(),
		ClientIP:  clientIP,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build payment url: %w", err)
	}
	return paymentURL, nil
}

// HandleReturn records the gateway outcome. Replayed returns of a paid order are
// answered without touching the payment again.
func (s *Service) HandleReturn(ctx context.Context, query url.Values) (*ReturnResult, error) {
	result, err := s.gateway.VerifyReturn(query)
	if err != nil {
		s.logger.Warn("rejected payment return", zap.Error(err))
		return nil, err
	}

	current, err := s.store.GetPaymentByOrderID(ctx, result.OrderID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.PaymentStatusPaid {
		result.Paid = true
		return result, nil
	}
	if !current.Amount.Equal(result.Amount) {
		s.logger.Warn("payment amount mismatch",
			zap.String("order_id", result.OrderID.String()),
			zap.String("expected", current.Amount.String()),
			zap.String("got", result.Amount.String()))
		return nil, ErrAmountMismatch
	}

	status := domain.PaymentStatusFailed
	if result.Paid {
		status = domain.PaymentStatusPaid
	}
	if _, err := s.store.UpdatePaymentStatus(ctx, result.OrderID, status, result.TransactionNo); err != nil {
		return nil, fmt.Errorf("failed to record payment result: %w", err)
	}

	s.logger.Info("payment result recorded",
		zap.String("order_id", result.OrderID.String()),
		zap.String("status", string(status)),
		zap.String("response_code", result.ResponseCode))
	return result, nil
}

func (s *Service) GetPayment(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	return s.store.GetPaymentByOrderID(ctx, orderID)
}

func (s *Service) UpdatePayment(ctx context.Context, orderID uuid.UUID, in PaymentUpdate) (*domain.Payment, error) {
	p, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if in.Method != nil {
		if !in.Method.Valid() {
			return nil, ErrInvalidMethod
		}
		p.Method = *in.Method
	}
	if in.Amount != nil {
		if in.Amount.IsNegative() {
			return nil, ErrNegativeAmount
		}
		p.Amount = *in.Amount
	}
	if in.Status != nil {
		switch *in.Status {
		case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed:
			p.Status = *in.Status
		default:
			return nil, ErrInvalidStatus
		}
	}
	if in.TransactionRef != nil {
		p.TransactionRef = strings.TrimSpace(*in.TransactionRef)
	}

	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePayment(ctx context.Context, orderID uuid.UUID) error {
	return s.store.DeletePayment(ctx, orderID)
}

func (s *Service) GetShipping(ctx context.Context, orderID uuid.UUID) (*domain.Shipping, error) {
	return s.store.GetShippingByOrderID(ctx, orderID)
}

func (s *Service) UpdateShipping(ctx context.Context, orderID uuid.UUID, in ShippingUpdate) (*domain.Shipping, error) {
	sh, err := s.store.GetShippingByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&sh.RecipientName, in.RecipientName)
	set(&sh.Phone, in.Phone)
	set(&sh.Address, in.Address)
	set(&sh.Method, in.Method)
	set(&sh.Status, in.Status)
	set(&sh.TrackingNumber, in.TrackingNumber)
	if in.Fee != nil {
		if in.Fee.IsNegative() {
			return nil, ErrNegativeAmount
		}
		sh.Fee = *in.Fee
	}

	if sh.RecipientName == "" || sh.Phone == "" || sh.Address == "" {
		return nil, ErrInvalidShipping
	}

	if err := s.store.UpdateShipping(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Service) DeleteShipping(ctx context.Context, orderID uuid.UUID) error {
	return s.store.DeleteShipping(ctx, orderID)
}
