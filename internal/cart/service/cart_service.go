package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/storefront/internal/cart/cache"
	"github.com/fjod/storefront/internal/cart/repository"
	catalog "github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	MinQuantity = 1
	MaxQuantity = 99

	generationShards = 256
)

var ErrInvalidQuantity = fmt.Errorf("quantity must be between %d and %d", MinQuantity, MaxQuantity)

// VariantCatalog is the part of the catalog the cart reads prices and stock from.
type VariantCatalog interface {
	GetVariant(ctx context.Context, id int64) (*domain.Variant, error)
	GetVariants(ctx context.Context, ids []int64) (map[int64]*domain.Variant, error)
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog VariantCatalog
	logger  *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede

	// bumped on every invalidation; a cache fill started under an older value is dropped
	generations [generationShards]atomic.Uint64
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, catalog VariantCatalog, logger *zap.Logger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		logger:  logger,
	}
}

func emptyCart(owner string) *domain.Cart {
	now := time.Now()
	return &domain.Cart{
		OwnerID:   owner,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetCart reads through the cache. A missing cart is returned as an empty one.
func (s *CartService) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(owner, func() (interface{}, error) {
		gen := s.generation(owner).Load()

		cart, err := s.cache.Get(ctx, owner)
		if err == nil {
			return cart, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get error", zap.String("owner", owner), zap.Error(err))
		}

		cart, errGet := s.repo.GetCart(ctx, owner)
		if errors.Is(errGet, repository.ErrCartNotFound) {
			return emptyCart(owner), nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go s.fillCache(owner, cart, gen)

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// GetCartView prices every line against the current catalog.
func (s *CartService) GetCartView(ctx context.Context, owner string) (*domain.CartView, error) {
	cart, err := s.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.VariantID
	}
	variants, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart variants: %w", err)
	}

	view := &domain.CartView{
		OwnerID:     owner,
		Lines:       make([]domain.CartLine, 0, len(cart.Items)),
		TotalAmount: decimal.Zero,
		UpdatedAt:   cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		line := domain.CartLine{CartItem: item, UnitPrice: decimal.Zero, Subtotal: decimal.Zero}
		if v, ok := variants[item.VariantID]; ok {
			line.ProductID = v.ProductID
			line.ProductName = v.ProductName
			line.VariantName = v.Name
			line.UnitPrice = v.Price
			line.Subtotal = v.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			line.InStock = v.Stock >= item.Quantity
			view.TotalAmount = view.TotalAmount.Add(line.Subtotal)
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

// AddToCart adds quantity of a variant, merging with an existing line for it.
// The merged quantity must fit in stock.
func (s *CartService) AddToCart(ctx context.Context, owner string, variantID int64, quantity int) (*domain.Cart, error) {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	variant, err := s.catalog.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	current, err := s.loadCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	total := quantity
	if existing := current.FindByVariant(variantID); existing != nil {
		total += existing.Quantity
	}
	if total > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	if variant.Stock < total {
		return nil, fmt.Errorf("%w: variant %d has %d left", catalog.ErrInsufficientStock, variantID, variant.Stock)
	}

	item := domain.CartItem{
		ID:        uuid.NewString(),
		VariantID: variantID,
		Quantity:  quantity,
		AddedAt:   time.Now(),
	}
	if err := s.repo.AddItem(ctx, owner, item); err != nil {
		s.logger.Error("repo add item error", zap.String("owner", owner), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(owner)
	return s.loadCart(ctx, owner)
}

func (s *CartService) UpdateCartItem(ctx context.Context, owner, itemID string, quantity int) (*domain.Cart, error) {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	current, err := s.loadCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	item := current.FindItem(itemID)
	if item == nil {
		return nil, repository.ErrItemNotFound
	}

	variant, err := s.catalog.GetVariant(ctx, item.VariantID)
	if err != nil {
		return nil, err
	}
	if variant.Stock < quantity {
		return nil, fmt.Errorf("%w: variant %d has %d left", catalog.ErrInsufficientStock, item.VariantID, variant.Stock)
	}

	if err := s.repo.UpdateItemQuantity(ctx, owner, itemID, quantity); err != nil {
		s.logger.Error("repo update item quantity error", zap.String("owner", owner), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(owner)
	return s.loadCart(ctx, owner)
}

func (s *CartService) RemoveCartItem(ctx context.Context, owner, itemID string) error {
	if err := s.repo.RemoveItem(ctx, owner, itemID); err != nil {
		s.logger.Error("repo remove item error", zap.String("owner", owner), zap.Error(err))
		return err
	}

	s.invalidateCache(owner)
	return nil
}

// ClearCart deletes the cart document. Clearing a cart that does not exist succeeds.
func (s *CartService) ClearCart(ctx context.Context, owner string) error {
	err := s.repo.DeleteCart(ctx, owner)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.Error("repo delete cart error", zap.String("owner", owner), zap.Error(err))
		return err
	}

	s.invalidateCache(owner)
	return nil
}

// MergeCarts folds the from cart (usually a guest session) into the to cart.
// Merged quantities are capped by stock and by MaxQuantity; the from cart is deleted.
func (s *CartService) MergeCarts(ctx context.Context, from, to string) (*domain.Cart, error) {
	source, err := s.repo.GetCart(ctx, from)
	if errors.Is(err, repository.ErrCartNotFound) {
		return s.loadCart(ctx, to)
	}
	if err != nil {
		return nil, err
	}

	target, err := s.loadCart(ctx, to)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(source.Items))
	for i, item := range source.Items {
		ids[i] = item.VariantID
	}
	variants, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants for merge: %w", err)
	}

	for _, item := range source.Items {
		v, ok := variants[item.VariantID]
		if !ok {
			continue
		}

		existing := 0
		if line := target.FindByVariant(item.VariantID); line != nil {
			existing = line.Quantity
		}
		merged := min(existing+item.Quantity, MaxQuantity, v.Stock)
		if merged <= existing {
			continue
		}

		add := domain.CartItem{
			ID:        item.ID,
			VariantID: item.VariantID,
			Quantity:  merged - existing,
			AddedAt:   item.AddedAt,
		}
		if err := s.repo.AddItem(ctx, to, add); err != nil {
			return nil, fmt.Errorf("failed to merge item %s: %w", item.ID, err)
		}
	}

	if err := s.repo.DeleteCart(ctx, from); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}

	s.invalidateCache(from)
	s.invalidateCache(to)
	s.logger.Info("carts merged", zap.String("from", from), zap.String("to", to))
	return s.loadCart(ctx, to)
}

// GetItems returns the listed items of the owner's cart; every id must be present.
func (s *CartService) GetItems(ctx context.Context, owner string, itemIDs []string) ([]domain.CartItem, error) {
	current, err := s.loadCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(itemIDs))
	items := make([]domain.CartItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		item := current.FindItem(id)
		if item == nil {
			return nil, fmt.Errorf("%w: %s", repository.ErrItemNotFound, id)
		}
		items = append(items, *item)
	}
	return items, nil
}

// RemoveItems drops the listed items. A missing cart is not an error.
func (s *CartService) RemoveItems(ctx context.Context, owner string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	err := s.repo.RemoveItems(ctx, owner, itemIDs)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}

	s.invalidateCache(owner)
	return nil
}

// loadCart bypasses the cache; writes are validated against the stored cart.
func (s *CartService) loadCart(ctx context.Context, owner string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return emptyCart(owner), nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) generation(owner string) *atomic.Uint64 {
	return &s.generations[xxhash.Sum64String(owner)%generationShards]
}

// fillCache stores a cart read under generation gen. If a write invalidated the owner
// meanwhile the fill is skipped, or undone when the invalidation raced the Set.
func (s *CartService) fillCache(owner string, cart *domain.Cart, gen uint64) {
	counter := s.generation(owner)
	if counter.Load() != gen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, owner, cart); err != nil {
		s.logger.Warn("cache set error", zap.String("owner", owner), zap.Error(err))
		return
	}
	if counter.Load() != gen {
		if err := s.cache.Delete(ctx, owner); err != nil {
			s.logger.Warn("cache invalidate error", zap.String("owner", owner), zap.Error(err))
		}
	}
}

// invalidateCache must run after the repository write it follows has completed.
func (s *CartService) invalidateCache(owner string) {
	s.generation(owner).Add(1)
	s.sfg.Forget(owner)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("owner", owner), zap.Error(err))
	}
}
