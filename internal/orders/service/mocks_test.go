package service

import (
	"context"
	"fmt"

	cartrepo "github.com/fjod/storefront/internal/cart/repository"
	catalog "github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/orders/repository"
	"github.com/google/uuid"
)

// MockStore implements Store for testing
type MockStore struct {
	Orders     map[uuid.UUID]*domain.Order
	CreateErr  error
	Created    *domain.Order
	StatusFrom []domain.OrderStatus
	Shipping   *domain.Shipping
	Payment    *domain.Payment
}

func newMockStore() *MockStore {
	return &MockStore{Orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *MockStore) CreateOrder(_ context.Context, order *domain.Order) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Created = order
	m.Orders[order.ID] = order
	return nil
}

func (m *MockStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m.Orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockStore) ListOrdersByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range m.Orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockStore) UpdateStatus(_ context.Context, id uuid.UUID, from []domain.OrderStatus, to domain.OrderStatus) (*domain.Order, error) {
	m.StatusFrom = from
	o, ok := m.Orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	for _, s := range from {
		if o.Status == s {
			o.Status = to
			cp := *o
			cp.Items = nil
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: order is %s", r.ErrInvalidTransition, o.Status)
}

func (m *MockStore) ConfirmOrder(_ context.Context, id uuid.UUID, shipping *domain.Shipping, payment *domain.Payment) (*domain.Order, error) {
	o, ok := m.Orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	if o.Status != domain.OrderStatusDraft {
		return nil, r.ErrInvalidTransition
	}
	m.Shipping = shipping
	m.Payment = payment
	o.Status = domain.OrderStatusPending
	cp := *o
	cp.Shipping = shipping
	cp.Payment = payment
	return &cp, nil
}

// MockCarts implements CartReader for testing
type MockCarts struct {
	Items     map[string]domain.CartItem
	Removed   []string
	RemoveErr error
}

func (m *MockCarts) RemoveItems(_ context.Context, _ string, itemIDs []string) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	for _, id := range itemIDs {
		delete(m.Items, id)
		m.Removed = append(m.Removed, id)
	}
	return nil
}

func (m *MockCarts) GetItems(_ context.Context, _ string, itemIDs []string) ([]domain.CartItem, error) {
	var out []domain.CartItem
	for _, id := range itemIDs {
		item, ok := m.Items[id]
		if !ok {
			return nil, cartrepo.ErrItemNotFound
		}
		out = append(out, item)
	}
	return out, nil
}

// MockInventory implements Inventory for testing
type MockInventory struct {
	Variants   map[int64]*domain.Variant
	ReserveErr error
	Reserved   []domain.StockLine
	Restored   []domain.StockLine
}

func (m *MockInventory) GetVariants(_ context.Context, ids []int64) (map[int64]*domain.Variant, error) {
	out := make(map[int64]*domain.Variant)
	for _, id := range ids {
		if v, ok := m.Variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *MockInventory) ReserveStock(_ context.Context, lines []domain.StockLine) error {
	if m.ReserveErr != nil {
		return m.ReserveErr
	}
	for _, line := range lines {
		if m.Variants[line.VariantID].Stock < line.Quantity {
			return catalog.ErrInsufficientStock
		}
	}
	m.Reserved = append(m.Reserved, lines...)
	return nil
}

func (m *MockInventory) RestoreStock(_ context.Context, lines []domain.StockLine) error {
	m.Restored = append(m.Restored, lines...)
	return nil
}
