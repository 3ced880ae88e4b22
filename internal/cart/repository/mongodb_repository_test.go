package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (*MongoRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func newItem(variantID int64, quantity int) domain.CartItem {
	return domain.CartItem{ID: uuid.NewString(), VariantID: variantID, Quantity: quantity}
}

func TestGetCart_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	cart, err := repo.GetCart(context.Background(), "customer:nonexistent")

	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestAddItem_CreatesCartLazily(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := domain.CustomerOwner("user123")
	item := newItem(1, 2)

	require.NoError(t, repo.AddItem(ctx, owner, item))

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, owner, cart.OwnerID)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, item.ID, cart.Items[0].ID)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.False(t, cart.CreatedAt.IsZero())
}

func TestAddItem_MergesSameVariant(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := domain.GuestOwner("session-1")
	first := newItem(5, 2)

	require.NoError(t, repo.AddItem(ctx, owner, first))
	require.NoError(t, repo.AddItem(ctx, owner, newItem(5, 3)))
	require.NoError(t, repo.AddItem(ctx, owner, newItem(6, 1)))

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	merged := cart.FindByVariant(5)
	require.NotNil(t, merged)
	assert.Equal(t, 5, merged.Quantity)
	assert.Equal(t, first.ID, merged.ID, "merged line keeps the original item id")
}

func TestAddItem_ConcurrentSameVariant(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := domain.CustomerOwner("racer")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AddItem(ctx, owner, newItem(9, 1)))
		}()
	}
	wg.Wait()

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestUpdateItemQuantity(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := domain.CustomerOwner("user123")
	item := newItem(1, 2)
	require.NoError(t, repo.AddItem(ctx, owner, item))

	require.NoError(t, repo.UpdateItemQuantity(ctx, owner, item.ID, 7))

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 7, cart.Items[0].Quantity)

	err = repo.UpdateItemQuantity(ctx, owner, "missing", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	err = repo.UpdateItemQuantity(ctx, domain.CustomerOwner("other"), item.ID, 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := domain.CustomerOwner("user123")
	keep := newItem(1, 1)
	drop := newItem(2, 1)
	require.NoError(t, repo.AddItem(ctx, owner, keep))
	require.NoError(t, repo.AddItem(ctx, owner, drop))

	require.NoError(t, repo.RemoveItem(ctx, owner, drop.ID))
	assert.ErrorIs(t, repo.RemoveItem(ctx, owner, drop.ID), ErrItemNotFound)

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, keep.ID, cart.Items[0].ID)
}

func TestRemoveItems(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := domain.CustomerOwner("user123")
	a, b, c := newItem(1, 1), newItem(2, 1), newItem(3, 1)
	for _, it := range []domain.CartItem{a, b, c} {
		require.NoError(t, repo.AddItem(ctx, owner, it))
	}

	require.NoError(t, repo.RemoveItems(ctx, owner, []string{a.ID, c.ID, "unknown"}))

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, b.ID, cart.Items[0].ID)

	assert.ErrorIs(t, repo.RemoveItems(ctx, "customer:nobody", []string{a.ID}), ErrCartNotFound)
}

func TestDeleteCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := domain.CustomerOwner("user123")
	require.NoError(t, repo.AddItem(ctx, owner, newItem(1, 1)))

	require.NoError(t, repo.DeleteCart(ctx, owner))

	_, err := repo.GetCart(ctx, owner)
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, repo.DeleteCart(ctx, owner), ErrCartNotFound)
}
