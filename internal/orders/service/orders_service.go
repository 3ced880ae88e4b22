package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/orders/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("storefront/orders")

// Store is the order persistence.
type Store interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.OrderStatus, to domain.OrderStatus) (*domain.Order, error)
	ConfirmOrder(ctx context.Context, id uuid.UUID, shipping *domain.Shipping, payment *domain.Payment) (*domain.Order, error)
}

// CartReader resolves the cart items an order is built from and drops them once ordered.
type CartReader interface {
	GetItems(ctx context.Context, owner string, itemIDs []string) ([]domain.CartItem, error)
	RemoveItems(ctx context.Context, owner string, itemIDs []string) error
}

// Inventory supplies prices and holds stock for orders.
type Inventory interface {
	GetVariants(ctx context.Context, ids []int64) (map[int64]*domain.Variant, error)
	ReserveStock(ctx context.Context, lines []domain.StockLine) error
	RestoreStock(ctx context.Context, lines []domain.StockLine) error
}

type ShippingInput struct {
	RecipientName string          `json:"recipient_name"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address"`
	Method        string          `json:"method"`
	Fee           decimal.Decimal `json:"fee"`
}

type PaymentInput struct {
	Method domain.PaymentMethod `json:"method"`
}

type OrderService struct {
	store     Store
	carts     CartReader
	inventory Inventory
	logger    *zap.Logger
}

func NewOrderService(store Store, carts CartReader, inventory Inventory, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:     store,
		carts:     carts,
		inventory: inventory,
		logger:    logger,
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CreateOrder turns the selected cart items into a draft order. Prices are captured
// from the catalog at this moment and stock is held until the order is cancelled.
func (s *OrderService) CreateOrder(ctx context.Context, customerID, cartOwner string, itemIDs []string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID), attribute.Int("items.count", len(itemIDs)))

	if len(itemIDs) == 0 {
		return nil, fail(span, ErrNoItems)
	}

	cartItems, err := s.carts.GetItems(ctx, cartOwner, itemIDs)
	if err != nil {
		return nil, fail(span, err)
	}
	if len(cartItems) == 0 {
		return nil, fail(span, ErrNoItems)
	}

	order, err := s.buildOrder(ctx, customerID, cartOwner, cartItems)
	if err != nil {
		return nil, fail(span, err)
	}

	lines := order.StockLines()
	if err := s.inventory.ReserveStock(ctx, lines); err != nil {
		return nil, fail(span, fmt.Errorf("failed to reserve stock: %w", err))
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		if restoreErr := s.inventory.RestoreStock(context.WithoutCancel(ctx), lines); restoreErr != nil {
			s.logger.Error("failed to restore stock after order insert failure",
				zap.String("order_id", order.ID.String()),
				zap.Error(restoreErr))
		}
		return nil, fail(span, fmt.Errorf("failed to create order: %w", err))
	}

	// the order.created event removes them again if this fails
	ordered := make([]string, len(cartItems))
	for i, item := range cartItems {
		ordered[i] = item.ID
	}
	if err := s.carts.RemoveItems(context.WithoutCancel(ctx), cartOwner, ordered); err != nil {
		s.logger.Warn("failed to remove ordered items from cart",
			zap.String("order_id", order.ID.String()),
			zap.String("cart_owner", cartOwner),
			zap.Error(err))
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", customerID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.TotalAmount.String()))
	return order, nil
}

func (s *OrderService) buildOrder(ctx context.Context, customerID, cartOwner string, cartItems []domain.CartItem) (*domain.Order, error) {
	ids := make([]int64, 0, len(cartItems))
	for _, item := range cartItems {
		ids = append(ids, item.VariantID)
	}

	variants, err := s.inventory.GetVariants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	order := &domain.Order{
		ID:             uuid.New(),
		CustomerID:     customerID,
		CartOwner:      cartOwner,
		Status:         domain.OrderStatusDraft,
		Items:          make([]domain.OrderItem, 0, len(cartItems)),
		SubtotalAmount: decimal.Zero,
		DiscountAmount: decimal.Zero,
	}

	for _, item := range cartItems {
		v, ok := variants[item.VariantID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrVariantUnavailable, item.VariantID)
		}
		subtotal := v.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.New(),
			CartItemID:  item.ID,
			VariantID:   v.ID,
			ProductName: v.ProductName,
			VariantName: v.Name,
			Quantity:    item.Quantity,
			PriceAtTime: v.Price,
			Subtotal:    subtotal,
		})
		order.SubtotalAmount = order.SubtotalAmount.Add(subtotal)
	}

	order.TotalAmount = order.SubtotalAmount
	return order, nil
}

// CancelOrder cancels a draft or pending order and returns its stock. The store
// releases any promotion usage the order held.
func (s *OrderService) CancelOrder(ctx context.Context, customerID string, orderID uuid.UUID) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	order, err := s.GetOrder(ctx, customerID, orderID)
	if err != nil {
		return nil, fail(span, err)
	}

	cancelled, err := s.store.UpdateStatus(ctx, orderID, domain.SourcesOf(domain.OrderStatusCancelled), domain.OrderStatusCancelled)
	if err != nil {
		return nil, fail(span, err)
	}

	if err := s.inventory.RestoreStock(ctx, order.StockLines()); err != nil {
		s.logger.Error("failed to restore stock for cancelled order",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}

	cancelled.Items = order.Items
	cancelled.Shipping = order.Shipping
	cancelled.Payment = order.Payment
	s.logger.Info("order cancelled", zap.String("order_id", orderID.String()), zap.String("from", order.Status.String()))
	return cancelled, nil
}

// ConfirmOrder records delivery and payment details and moves a draft order to pending.
func (s *OrderService) ConfirmOrder(ctx context.Context, customerID string, orderID uuid.UUID, shippingIn ShippingInput, paymentIn PaymentInput) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.ConfirmOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	shipping, err := newShipping(shippingIn)
	if err != nil {
		return nil, fail(span, err)
	}
	if !paymentIn.Method.Valid() {
		return nil, fail(span, ErrInvalidPaymentMethod)
	}

	order, err := s.GetOrder(ctx, customerID, orderID)
	if err != nil {
		return nil, fail(span, err)
	}
	if order.Status != domain.OrderStatusDraft {
		return nil, fail(span, fmt.Errorf("%w: order is %s", r.ErrInvalidTransition, order.Status))
	}

	payment := &domain.Payment{
		ID:     uuid.New(),
		Method: paymentIn.Method,
		Amount: order.TotalAmount.Add(shipping.Fee).Round(2),
		Status: domain.PaymentStatusPending,
	}

	confirmed, err := s.store.ConfirmOrder(ctx, orderID, shipping, payment)
	if err != nil {
		return nil, fail(span, err)
	}
	confirmed.Items = order.Items

	s.logger.Info("order confirmed",
		zap.String("order_id", orderID.String()),
		zap.String("payment_method", string(payment.Method)),
		zap.String("amount", payment.Amount.String()))
	return confirmed, nil
}

func newShipping(in ShippingInput) (*domain.Shipping, error) {
	shipping := &domain.Shipping{
		ID:            uuid.New(),
		RecipientName: strings.TrimSpace(in.RecipientName),
		Phone:         strings.TrimSpace(in.Phone),
		Address:       strings.TrimSpace(in.Address),
		Method:        strings.TrimSpace(in.Method),
		Fee:           in.Fee,
		Status:        "pending",
	}
	if shipping.RecipientName == "" || shipping.Phone == "" || shipping.Address == "" {
		return nil, ErrInvalidShipping
	}
	if shipping.Fee.IsNegative() {
		return nil, ErrNegativeShippingFee
	}
	if shipping.Method == "" {
		shipping.Method = "standard"
	}
	return shipping, nil
}

// AdvanceStatus moves an order along its lifecycle. Used by administrators.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.AdvanceStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()), attribute.String("order.status", to.String()))

	if !to.Valid() {
		return nil, fail(span, ErrInvalidStatus)
	}

	current, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fail(span, err)
	}
	if !domain.CanTransitionTo(current.Status, to) {
		return nil, fail(span, fmt.Errorf("%w: %s to %s", r.ErrInvalidTransition, current.Status, to))
	}

	updated, err := s.store.UpdateStatus(ctx, orderID, domain.SourcesOf(to), to)
	if err != nil {
		return nil, fail(span, err)
	}

	if to == domain.OrderStatusCancelled {
		if err := s.inventory.RestoreStock(ctx, current.StockLines()); err != nil {
			s.logger.Error("failed to restore stock for cancelled order",
				zap.String("order_id", orderID.String()),
				zap.Error(err))
		}
	}

	updated.Items = current.Items
	updated.Shipping = current.Shipping
	updated.Payment = current.Payment
	s.logger.Info("order status changed",
		zap.String("order_id", orderID.String()),
		zap.String("from", current.Status.String()),
		zap.String("to", to.String()))
	return updated, nil
}

// GetOrder returns the customer's order. Orders of other customers are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, customerID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, r.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.store.ListOrdersByCustomer(ctx, customerID)
}
