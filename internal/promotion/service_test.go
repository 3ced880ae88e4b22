package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/orders/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockStore implements Store for testing
type MockStore struct {
	Promotions map[uuid.UUID]*domain.Promotion
	Orders     map[uuid.UUID]*domain.Order
	RedeemErr  error
	Redeemed   *domain.PromotionRedemption
	Created    *domain.Promotion
	CreateErr  error
	Locked     *domain.Promotion
}

func newMockStore() *MockStore {
	return &MockStore{
		Promotions: make(map[uuid.UUID]*domain.Promotion),
		Orders:     make(map[uuid.UUID]*domain.Order),
	}
}

func (m *MockStore) CreatePromotion(_ context.Context, p *domain.Promotion) error {
	m.Created = p
	return m.CreateErr
}

func (m *MockStore) GetPromotion(_ context.Context, id uuid.UUID) (*domain.Promotion, error) {
	p, ok := m.Promotions[id]
	if !ok {
		return nil, r.ErrPromotionNotFound
	}
	return p, nil
}

func (m *MockStore) GetPromotionByCode(_ context.Context, code string) (*domain.Promotion, error) {
	for _, p := range m.Promotions {
		if p.Code == code && !p.IsDeleted {
			return p, nil
		}
	}
	return nil, r.ErrPromotionNotFound
}

func (m *MockStore) ListPromotions(_ context.Context) ([]*domain.Promotion, error) {
	var out []*domain.Promotion
	for _, p := range m.Promotions {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockStore) ListActivePromotions(_ context.Context, at time.Time) ([]*domain.Promotion, error) {
	var out []*domain.Promotion
	for _, p := range m.Promotions {
		if Eligible(p, p.MinimumPurchaseAmount, at) == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockStore) UpdatePromotion(_ context.Context, p *domain.Promotion) error {
	if _, ok := m.Promotions[p.ID]; !ok {
		return r.ErrPromotionNotFound
	}
	m.Promotions[p.ID] = p
	return nil
}

func (m *MockStore) DeletePromotion(_ context.Context, id uuid.UUID) error {
	p, ok := m.Promotions[id]
	if !ok {
		return r.ErrPromotionNotFound
	}
	p.IsDeleted = true
	return nil
}

func (m *MockStore) RedeemPromotion(_ context.Context, red *domain.PromotionRedemption, check func(*domain.Promotion) error) (*domain.Order, error) {
	if m.RedeemErr != nil {
		return nil, m.RedeemErr
	}
	p := m.Promotions[red.PromotionID]
	if m.Locked != nil {
		p = m.Locked
	}
	if err := check(p); err != nil {
		return nil, err
	}
	m.Redeemed = red
	o := *m.Orders[red.OrderID]
	o.PromotionID = &red.PromotionID
	o.DiscountAmount = red.DiscountAmount
	o.TotalAmount = red.TotalAmount
	return &o, nil
}

func (m *MockStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m.Orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	return o, nil
}

func newTestService(store Store) *Service {
	svc := NewService(store, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func seed(t *testing.T, store *MockStore, total string) (*domain.Promotion, *domain.Order) {
	t.Helper()
	p := activePromotion(domain.DiscountTypePercentage, "10")
	p.ID = uuid.New()
	p.MaximumDiscountAmount.Decimal = dec("50000")
	p.MaximumDiscountAmount.Valid = true
	store.Promotions[p.ID] = p

	o := &domain.Order{
		ID:             uuid.New(),
		CustomerID:     "customer-1",
		Status:         domain.OrderStatusDraft,
		SubtotalAmount: dec(total),
		TotalAmount:    dec(total),
	}
	store.Orders[o.ID] = o
	return p, o
}

func TestApply_Success(t *testing.T) {
	store := newMockStore()
	p, o := seed(t, store, "1000000")
	svc := newTestService(store)

	res, err := svc.Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})

	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Empty(t, res.Reason)
	assert.True(t, dec("950000").Equal(res.TotalAmount), "got %s", res.TotalAmount)
	assert.True(t, dec("50000").Equal(res.DiscountAmount))
	assert.True(t, dec("1000000").Equal(res.OriginalTotal))
	require.NotNil(t, store.Redeemed)
	assert.Equal(t, "customer-1", store.Redeemed.CustomerID)
}

func TestApply_ByCode(t *testing.T) {
	store := newMockStore()
	_, o := seed(t, store, "200000")
	svc := newTestService(store)

	res, err := svc.Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, Code: " SPRING "})

	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, dec("180000").Equal(res.TotalAmount))
}

func TestApply_IneligibleLeavesTotalUnchanged(t *testing.T) {
	store := newMockStore()
	p, o := seed(t, store, "1000000")
	p.EndDate = now.Add(-time.Minute)
	svc := newTestService(store)

	res, err := svc.Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})

	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ErrExpired.Error(), res.Reason)
	assert.True(t, o.TotalAmount.Equal(res.TotalAmount))
	assert.Nil(t, store.Redeemed)
}

func TestApply_RedemptionRejections(t *testing.T) {
	for _, rejection := range []error{r.ErrPromotionExhausted, r.ErrCustomerLimitReached, r.ErrPromotionAlreadyApplied} {
		t.Run(rejection.Error(), func(t *testing.T) {
			store := newMockStore()
			p, o := seed(t, store, "1000000")
			store.RedeemErr = rejection
			svc := newTestService(store)

			res, err := svc.Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})

			require.NoError(t, err)
			assert.False(t, res.Applied)
			assert.Equal(t, rejection.Error(), res.Reason)
			assert.True(t, dec("1000000").Equal(res.TotalAmount))
		})
	}
}

func TestApply_LockedRowReevaluated(t *testing.T) {
	store := newMockStore()
	p, o := seed(t, store, "1000000")
	svc := newTestService(store)

	// an admin deactivates it between the read and the lock
	locked := *p
	locked.IsActive = false
	store.Locked = &locked

	res, err := svc.Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ErrInactive.Error(), res.Reason)
	assert.Nil(t, store.Redeemed)
}

func TestApply_ExhaustedReportedWithOneError(t *testing.T) {
	assert.ErrorIs(t, ErrUsageExhausted, r.ErrPromotionExhausted)

	// exhausted by the time the row is locked
	store := newMockStore()
	p, o := seed(t, store, "1000000")
	locked := *p
	locked.UsageLimit = intPtr(3)
	locked.UsedCount = 3
	store.Locked = &locked

	atLock, err := newTestService(store).Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})
	require.NoError(t, err)

	// exhausted by the store's own guard
	store = newMockStore()
	p, o = seed(t, store, "1000000")
	store.RedeemErr = r.ErrPromotionExhausted

	inStore, err := newTestService(store).Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})
	require.NoError(t, err)

	assert.False(t, atLock.Applied)
	assert.False(t, inStore.Applied)
	assert.Equal(t, r.ErrPromotionExhausted.Error(), atLock.Reason)
	assert.Equal(t, atLock.Reason, inStore.Reason)
}

func TestApply_StoreErrorPropagates(t *testing.T) {
	store := newMockStore()
	p, o := seed(t, store, "1000000")
	store.RedeemErr = errors.New("connection reset")
	svc := newTestService(store)

	_, err := svc.Apply(context.Background(), "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to redeem promotion")
}

func TestApply_OrderChecks(t *testing.T) {
	store := newMockStore()
	p, o := seed(t, store, "1000000")
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Apply(ctx, "someone-else", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})
	assert.ErrorIs(t, err, r.ErrOrderNotFound)

	_, err = svc.Apply(ctx, "customer-1", ApplyRequest{OrderID: o.ID})
	assert.ErrorIs(t, err, ErrMissingPromotion)

	missing := uuid.New()
	_, err = svc.Apply(ctx, "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &missing})
	assert.ErrorIs(t, err, r.ErrPromotionNotFound)

	o.Status = domain.OrderStatusPending
	_, err = svc.Apply(ctx, "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})
	assert.ErrorIs(t, err, ErrOrderNotDraft)

	o.Status = domain.OrderStatusDraft
	o.PromotionID = &p.ID
	res, err := svc.Apply(ctx, "customer-1", ApplyRequest{OrderID: o.ID, PromotionID: &p.ID})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, r.ErrPromotionAlreadyApplied.Error(), res.Reason)
}

func TestCreate_ValidatesAndAssignsID(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	p := activePromotion(domain.DiscountTypeFixedAmount, "20000")
	p.Code = "  FLAT20  "
	created, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "FLAT20", store.Created.Code)

	bad := activePromotion(domain.DiscountTypePercentage, "0")
	_, err = svc.Create(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidPromotion)
}

func TestDeleteAndListActive(t *testing.T) {
	store := newMockStore()
	p, _ := seed(t, store, "1000")
	svc := newTestService(store)
	ctx := context.Background()

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, svc.Delete(ctx, p.ID))
	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, svc.Delete(ctx, uuid.New()), r.ErrPromotionNotFound)
}
