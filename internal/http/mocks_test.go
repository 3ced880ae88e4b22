package http

import (
	"context"
	"net/url"
	"time"

	cartsvc "github.com/fjod/storefront/internal/cart/service"
	catalog "github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/domain"
	orderrepo "github.com/fjod/storefront/internal/orders/repository"
	ordersvc "github.com/fjod/storefront/internal/orders/service"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/promotion"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartMock struct {
	Owner  string
	Added  int64
	Merged [2]string
	Err    error
}

func (m *CartMock) GetCartView(_ context.Context, owner string) (*domain.CartView, error) {
	m.Owner = owner
	return &domain.CartView{OwnerID: owner, Lines: []domain.CartLine{}, TotalAmount: decimal.Zero}, nil
}

func (m *CartMock) AddToCart(_ context.Context, owner string, variantID int64, quantity int) (*domain.Cart, error) {
	if quantity < cartsvc.MinQuantity || quantity > cartsvc.MaxQuantity {
		return nil, cartsvc.ErrInvalidQuantity
	}
	if m.Err != nil {
		return nil, m.Err
	}
	m.Owner = owner
	m.Added = variantID
	return &domain.Cart{OwnerID: owner}, nil
}

func (m *CartMock) UpdateCartItem(_ context.Context, owner, _ string, _ int) (*domain.Cart, error) {
	return &domain.Cart{OwnerID: owner}, m.Err
}

func (m *CartMock) RemoveCartItem(context.Context, string, string) error {
	return m.Err
}

func (m *CartMock) ClearCart(context.Context, string) error {
	return m.Err
}

func (m *CartMock) MergeCarts(_ context.Context, from, to string) (*domain.Cart, error) {
	m.Merged = [2]string{from, to}
	return &domain.Cart{OwnerID: to}, m.Err
}

type OrdersMock struct {
	Order      *domain.Order
	Err        error
	CustomerID string
	Owner      string
}

func (m *OrdersMock) CreateOrder(_ context.Context, customerID, cartOwner string, _ []string) (*domain.Order, error) {
	m.CustomerID = customerID
	m.Owner = cartOwner
	return m.Order, m.Err
}

func (m *OrdersMock) CancelOrder(_ context.Context, customerID string, _ uuid.UUID) (*domain.Order, error) {
	m.CustomerID = customerID
	return m.Order, m.Err
}

func (m *OrdersMock) ConfirmOrder(_ context.Context, customerID string, _ uuid.UUID, _ ordersvc.ShippingInput, _ ordersvc.PaymentInput) (*domain.Order, error) {
	m.CustomerID = customerID
	return m.Order, m.Err
}

func (m *OrdersMock) AdvanceStatus(_ context.Context, _ uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	o := *m.Order
	o.Status = to
	return &o, nil
}

func (m *OrdersMock) GetOrder(_ context.Context, customerID string, _ uuid.UUID) (*domain.Order, error) {
	if m.Order != nil && m.Order.CustomerID != customerID {
		return nil, orderrepo.ErrOrderNotFound
	}
	return m.Order, m.Err
}

func (m *OrdersMock) ListCustomerOrders(context.Context, string) ([]*domain.Order, error) {
	return nil, m.Err
}

type CatalogMock struct {
	Filter domain.ProductFilter
}

func (m *CatalogMock) ListProducts(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error) {
	m.Filter = filter
	return []*domain.Product{{ID: 1, Name: "ThinkPad X1 Carbon"}}, 45, nil
}

func (m *CatalogMock) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if id != 1 {
		return nil, catalog.ErrProductNotFound
	}
	return &domain.Product{ID: 1}, nil
}

func (m *CatalogMock) ListVariants(_ context.Context, productID int64) ([]*domain.Variant, error) {
	if productID != 1 {
		return nil, catalog.ErrProductNotFound
	}
	return []*domain.Variant{{ID: 1, ProductID: 1, Price: decimal.RequireFromString("32000000")}}, nil
}

func (m *CatalogMock) ListBrandsByCategory(_ context.Context, categoryID int64) ([]*domain.Brand, error) {
	return []*domain.Brand{{ID: 1, CategoryID: categoryID, Name: "Lenovo"}}, nil
}

func (m *CatalogMock) ListAttributeTypesByCategory(_ context.Context, categoryID int64) ([]*domain.AttributeType, error) {
	return []*domain.AttributeType{{ID: 1, CategoryID: categoryID, Name: "RAM"}}, nil
}

type PromotionsMock struct {
	Result  *promotion.ApplyResult
	Err     error
	Created *domain.Promotion
}

func (m *PromotionsMock) Apply(context.Context, string, promotion.ApplyRequest) (*promotion.ApplyResult, error) {
	return m.Result, m.Err
}

func (m *PromotionsMock) Create(_ context.Context, p *domain.Promotion) (*domain.Promotion, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	p.ID = uuid.New()
	m.Created = p
	return p, nil
}

func (m *PromotionsMock) Update(_ context.Context, p *domain.Promotion) (*domain.Promotion, error) {
	return p, m.Err
}

func (m *PromotionsMock) Delete(context.Context, uuid.UUID) error {
	return m.Err
}

func (m *PromotionsMock) Get(context.Context, uuid.UUID) (*domain.Promotion, error) {
	return nil, orderrepo.ErrPromotionNotFound
}

func (m *PromotionsMock) List(context.Context) ([]*domain.Promotion, error) {
	return nil, m.Err
}

func (m *PromotionsMock) ListActive(context.Context) ([]*domain.Promotion, error) {
	return []*domain.Promotion{{ID: uuid.New(), Code: "SPRING", StartDate: time.Now(), EndDate: time.Now()}}, m.Err
}

type PaymentsMock struct {
	ClientIP string
	Result   *payment.ReturnResult
	Err      error
}

func (m *PaymentsMock) CreatePaymentURL(_ context.Context, _ string, _ uuid.UUID, clientIP string) (string, error) {
	m.ClientIP = clientIP
	return "https://pay.example/vpcpay.html?vnp_Amount=100", m.Err
}

func (m *PaymentsMock) HandleReturn(context.Context, url.Values) (*payment.ReturnResult, error) {
	return m.Result, m.Err
}

func (m *PaymentsMock) GetPayment(context.Context, uuid.UUID) (*domain.Payment, error) {
	return nil, orderrepo.ErrPaymentNotFound
}

func (m *PaymentsMock) UpdatePayment(_ context.Context, orderID uuid.UUID, _ payment.PaymentUpdate) (*domain.Payment, error) {
	return &domain.Payment{OrderID: orderID}, m.Err
}

func (m *PaymentsMock) DeletePayment(context.Context, uuid.UUID) error {
	return m.Err
}

func (m *PaymentsMock) GetShipping(context.Context, uuid.UUID) (*domain.Shipping, error) {
	return nil, orderrepo.ErrShippingNotFound
}

func (m *PaymentsMock) UpdateShipping(_ context.Context, orderID uuid.UUID, _ payment.ShippingUpdate) (*domain.Shipping, error) {
	return &domain.Shipping{OrderID: orderID}, m.Err
}

func (m *PaymentsMock) DeleteShipping(context.Context, uuid.UUID) error {
	return m.Err
}

type HealthMock struct {
	Healthy bool
}

func (m HealthMock) Report() (map[string]string, bool) {
	if m.Healthy {
		return map[string]string{"postgres": "ok"}, true
	}
	return map[string]string{"postgres": "connection refused"}, false
}
