package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *repository.Repository {
	// Use in-memory database for tests
	repo, err := repository.NewRepository(":memory:")
	require.NoError(t, err)

	require.NoError(t, repo.RunMigrations())
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestListProducts_ReturnsSeededProducts(t *testing.T) {
	repo := setupTestDB(t)

	products, total, err := repo.ListProducts(context.Background(), domain.ProductFilter{})

	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, products, 5)
	assert.Equal(t, "ThinkPad X1 Carbon", products[0].Name)
	assert.False(t, products[0].CreatedAt.IsZero())
}

func TestListProducts_Filters(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	phones, total, err := repo.ListProducts(ctx, domain.ProductFilter{CategoryID: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, p := range phones {
		assert.Equal(t, int64(2), p.CategoryID)
	}

	lenovo, total, err := repo.ListProducts(ctx, domain.ProductFilter{BrandID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, lenovo, 2)

	found, total, err := repo.ListProducts(ctx, domain.ProductFilter{Search: "xps"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "XPS 13", found[0].Name)
}

func TestListProducts_Pagination(t *testing.T) {
	repo := setupTestDB(t)

	page, total, err := repo.ListProducts(context.Background(), domain.ProductFilter{Page: 2, Limit: 2})

	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].ID)
}

func TestListProducts_CancelledContext(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := repo.ListProducts(ctx, domain.ProductFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetProduct(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	product, err := repo.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), product.BrandID)

	_, err = repo.GetProduct(ctx, -1)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)
}

func TestVariants(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	variants, err := repo.ListVariants(ctx, 1)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "ThinkPad X1 Carbon", variants[0].ProductName)
	assert.True(t, decimal.RequireFromString("32000000").Equal(variants[0].Price))

	_, err = repo.ListVariants(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	v, err := repo.GetVariant(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "S24-BLK-256", v.SKU)
	assert.Equal(t, 25, v.Stock)

	_, err = repo.GetVariant(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrVariantNotFound)

	byID, err := repo.GetVariants(ctx, []int64{1, 7, 999})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
	assert.Contains(t, byID, int64(7))
}

func TestBrandsAndAttributeTypes(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	brands, err := repo.ListBrandsByCategory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, brands, 2)

	types, err := repo.ListAttributeTypesByCategory(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, types, 2)

	none, err := repo.ListBrandsByCategory(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReserveStock_AllOrNothing(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	// variant 2 only has 3 in stock
	err := repo.ReserveStock(ctx, []domain.StockLine{
		{VariantID: 1, Quantity: 2},
		{VariantID: 2, Quantity: 4},
	})
	require.ErrorIs(t, err, repository.ErrInsufficientStock)

	v1, err := repo.GetVariant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, v1.Stock, "first line must be rolled back")

	require.NoError(t, repo.ReserveStock(ctx, []domain.StockLine{
		{VariantID: 1, Quantity: 2},
		{VariantID: 2, Quantity: 3},
	}))

	v2, err := repo.GetVariant(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, v2.Stock)

	require.NoError(t, repo.RestoreStock(ctx, []domain.StockLine{{VariantID: 2, Quantity: 3}}))
	v2, err = repo.GetVariant(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, v2.Stock)
}

func TestReserveStock_UnknownVariant(t *testing.T) {
	repo := setupTestDB(t)

	err := repo.ReserveStock(context.Background(), []domain.StockLine{{VariantID: 999, Quantity: 1}})
	assert.ErrorIs(t, err, repository.ErrVariantNotFound)
}
