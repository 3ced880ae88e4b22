package payment

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/orders/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockStore implements Store for testing
type MockStore struct {
	Orders        map[uuid.UUID]*domain.Order
	Payments      map[uuid.UUID]*domain.Payment
	Shippings     map[uuid.UUID]*domain.Shipping
	StatusUpdates int
}

func newMockStore() *MockStore {
	return &MockStore{
		Orders:    make(map[uuid.UUID]*domain.Order),
		Payments:  make(map[uuid.UUID]*domain.Payment),
		Shippings: make(map[uuid.UUID]*domain.Shipping),
	}
}

func (m *MockStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m.Orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	cp := *o
	cp.Payment = m.Payments[id]
	return &cp, nil
}

func (m *MockStore) GetPaymentByOrderID(_ context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	p, ok := m.Payments[orderID]
	if !ok {
		return nil, r.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockStore) UpdatePaymentStatus(_ context.Context, orderID uuid.UUID, status domain.PaymentStatus, ref string) (*domain.Payment, error) {
	p, ok := m.Payments[orderID]
	if !ok {
		return nil, r.ErrPaymentNotFound
	}
	m.StatusUpdates++
	p.Status = status
	p.TransactionRef = ref
	return p, nil
}

func (m *MockStore) UpdatePayment(_ context.Context, p *domain.Payment) error {
	if _, ok := m.Payments[p.OrderID]; !ok {
		return r.ErrPaymentNotFound
	}
	m.Payments[p.OrderID] = p
	return nil
}

func (m *MockStore) DeletePayment(_ context.Context, orderID uuid.UUID) error {
	if _, ok := m.Payments[orderID]; !ok {
		return r.ErrPaymentNotFound
	}
	delete(m.Payments, orderID)
	return nil
}

func (m *MockStore) GetShippingByOrderID(_ context.Context, orderID uuid.UUID) (*domain.Shipping, error) {
	s, ok := m.Shippings[orderID]
	if !ok {
		return nil, r.ErrShippingNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockStore) UpdateShipping(_ context.Context, s *domain.Shipping) error {
	if _, ok := m.Shippings[s.OrderID]; !ok {
		return r.ErrShippingNotFound
	}
	m.Shippings[s.OrderID] = s
	return nil
}

func (m *MockStore) DeleteShipping(_ context.Context, orderID uuid.UUID) error {
	if _, ok := m.Shippings[orderID]; !ok {
		return r.ErrShippingNotFound
	}
	delete(m.Shippings, orderID)
	return nil
}

func seedOrder(store *MockStore, method domain.PaymentMethod) *domain.Order {
	o := &domain.Order{
		ID:          uuid.New(),
		CustomerID:  "42",
		Status:      domain.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("3001"),
	}
	store.Orders[o.ID] = o
	store.Payments[o.ID] = &domain.Payment{
		ID:      uuid.New(),
		OrderID: o.ID,
		Method:  method,
		Amount:  decimal.RequireFromString("3031"),
		Status:  domain.PaymentStatusPending,
	}
	store.Shippings[o.ID] = &domain.Shipping{
		ID:            uuid.New(),
		OrderID:       o.ID,
		RecipientName: "Ann",
		Phone:         "0900",
		Address:       "1 Main St",
		Method:        "standard",
		Fee:           decimal.RequireFromString("30"),
		Status:        "pending",
	}
	return o
}

func newTestService(store Store) (*Service, *VNPay) {
	gw := testGateway()
	svc := NewService(store, gw, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC) }
	return svc, gw
}

func TestCreatePaymentURL(t *testing.T) {
	store := newMockStore()
	o := seedOrder(store, domain.PaymentMethodVNPay)
	svc, _ := newTestService(store)
	ctx := context.Background()

	raw, err := svc.CreatePaymentURL(ctx, "42", o.ID, "10.0.0.1")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "303100", u.Query().Get("vnp_Amount"))
	assert.Equal(t, "10.0.0.1", u.Query().Get("vnp_IpAddr"))

	_, err = svc.CreatePaymentURL(ctx, "7", o.ID, "10.0.0.1")
	assert.ErrorIs(t, err, r.ErrOrderNotFound)

	store.Payments[o.ID].Status = domain.PaymentStatusPaid
	_, err = svc.CreatePaymentURL(ctx, "42", o.ID, "10.0.0.1")
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	cod := seedOrder(store, domain.PaymentMethodCOD)
	_, err = svc.CreatePaymentURL(ctx, "42", cod.ID, "10.0.0.1")
	assert.ErrorIs(t, err, ErrNotPayable)

	draft := seedOrder(store, domain.PaymentMethodVNPay)
	store.Orders[draft.ID].Status = domain.OrderStatusDraft
	_, err = svc.CreatePaymentURL(ctx, "42", draft.ID, "10.0.0.1")
	assert.ErrorIs(t, err, ErrNotPayable)
}

func returnQuery(gw *VNPay, orderID uuid.UUID, amount, code string) url.Values {
	return gatewayReturn(gw, url.Values{
		"vnp_TxnRef":        {orderID.String()},
		"vnp_Amount":        {amount},
		"vnp_ResponseCode":  {code},
		"vnp_TransactionNo": {"14012345"},
	})
}

func TestHandleReturn_Paid(t *testing.T) {
	store := newMockStore()
	o := seedOrder(store, domain.PaymentMethodVNPay)
	svc, gw := newTestService(store)

	res, err := svc.HandleReturn(context.Background(), returnQuery(gw, o.ID, "303100", "00"))

	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, domain.PaymentStatusPaid, store.Payments[o.ID].Status)
	assert.Equal(t, "14012345", store.Payments[o.ID].TransactionRef)

	// a replayed redirect is answered without another write
	res, err = svc.HandleReturn(context.Background(), returnQuery(gw, o.ID, "303100", "00"))
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, 1, store.StatusUpdates)
}

func TestHandleReturn_Failed(t *testing.T) {
	store := newMockStore()
	o := seedOrder(store, domain.PaymentMethodVNPay)
	svc, gw := newTestService(store)

	res, err := svc.HandleReturn(context.Background(), returnQuery(gw, o.ID, "303100", "24"))

	require.NoError(t, err)
	assert.False(t, res.Paid)
	assert.Equal(t, domain.PaymentStatusFailed, store.Payments[o.ID].Status)
}

func TestHandleReturn_Rejects(t *testing.T) {
	store := newMockStore()
	o := seedOrder(store, domain.PaymentMethodVNPay)
	svc, gw := newTestService(store)
	ctx := context.Background()

	_, err := svc.HandleReturn(ctx, returnQuery(gw, o.ID, "100", "00"))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	forged := returnQuery(gw, o.ID, "303100", "00")
	forged.Set("vnp_ResponseCode", "00 ")
	_, err = svc.HandleReturn(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.HandleReturn(ctx, returnQuery(gw, uuid.New(), "303100", "00"))
	assert.ErrorIs(t, err, r.ErrPaymentNotFound)

	assert.Equal(t, 0, store.StatusUpdates)
}

func TestUpdatePayment(t *testing.T) {
	store := newMockStore()
	o := seedOrder(store, domain.PaymentMethodCOD)
	svc, _ := newTestService(store)
	ctx := context.Background()

	paid := domain.PaymentStatusPaid
	ref := " cash-001 "
	p, err := svc.UpdatePayment(ctx, o.ID, PaymentUpdate{Status: &paid, TransactionRef: &ref})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, p.Status)
	assert.Equal(t, "cash-001", p.TransactionRef)
	assert.Equal(t, domain.PaymentMethodCOD, p.Method)

	bogus := domain.PaymentStatus("refunded")
	_, err = svc.UpdatePayment(ctx, o.ID, PaymentUpdate{Status: &bogus})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	method := domain.PaymentMethod("cheque")
	_, err = svc.UpdatePayment(ctx, o.ID, PaymentUpdate{Method: &method})
	assert.ErrorIs(t, err, ErrInvalidMethod)

	negative := decimal.RequireFromString("-1")
	_, err = svc.UpdatePayment(ctx, o.ID, PaymentUpdate{Amount: &negative})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	require.NoError(t, svc.DeletePayment(ctx, o.ID))
	assert.ErrorIs(t, svc.DeletePayment(ctx, o.ID), r.ErrPaymentNotFound)
	_, err = svc.UpdatePayment(ctx, o.ID, PaymentUpdate{})
	assert.ErrorIs(t, err, r.ErrPaymentNotFound)
}

func TestUpdateShipping(t *testing.T) {
	store := newMockStore()
	o := seedOrder(store, domain.PaymentMethodCOD)
	svc, _ := newTestService(store)
	ctx := context.Background()

	tracking := "VN123"
	status := "shipped"
	sh, err := svc.UpdateShipping(ctx, o.ID, ShippingUpdate{TrackingNumber: &tracking, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "VN123", sh.TrackingNumber)
	assert.Equal(t, "shipped", sh.Status)
	assert.Equal(t, "Ann", sh.RecipientName)

	blank := "  "
	_, err = svc.UpdateShipping(ctx, o.ID, ShippingUpdate{Address: &blank})
	assert.ErrorIs(t, err, ErrInvalidShipping)
	assert.Equal(t, "1 Main St", store.Shippings[o.ID].Address)

	require.NoError(t, svc.DeleteShipping(ctx, o.ID))
	_, err = svc.GetShipping(ctx, o.ID)
	assert.ErrorIs(t, err, r.ErrShippingNotFound)
}
