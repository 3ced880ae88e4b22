package repository

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// CartRepository defines the interface for cart data operations
type CartRepository interface {
	GetCart(ctx context.Context, owner string) (*domain.Cart, error)
	AddItem(ctx context.Context, owner string, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, owner, itemID string, quantity int) error
	RemoveItem(ctx context.Context, owner, itemID string) error
	RemoveItems(ctx context.Context, owner string, itemIDs []string) error
	DeleteCart(ctx context.Context, owner string) error
}
