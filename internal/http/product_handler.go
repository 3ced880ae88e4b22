package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	catalog "github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Catalog interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListVariants(ctx context.Context, productID int64) ([]*domain.Variant, error)
	ListBrandsByCategory(ctx context.Context, categoryID int64) ([]*domain.Brand, error)
	ListAttributeTypesByCategory(ctx context.Context, categoryID int64) ([]*domain.AttributeType, error)
}

type ProductHandler struct {
	catalog Catalog
	timeout time.Duration
	logger  *zap.Logger
}

func NewProductHandler(catalog Catalog, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func positiveIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// GET /api/products?categoryId=&brandId=&search=&page=&limit=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var filter domain.ProductFilter
	for key, dst := range map[string]*int64{"categoryId": &filter.CategoryID, "brandId": &filter.BrandID} {
		v, ok := queryInt(r, key)
		if !ok {
			respondError(w, http.StatusBadRequest, key+" must be a non-negative integer")
			return
		}
		*dst = v
	}
	page, okPage := queryInt(r, "page")
	limit, okLimit := queryInt(r, "limit")
	if !okPage || !okLimit {
		respondError(w, http.StatusBadRequest, "page and limit must be non-negative integers")
		return
	}
	filter.Search = r.URL.Query().Get("search")
	filter.Page = int(page)
	filter.Limit = int(limit)

	products, total, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	effectiveLimit, _ := catalog.Paginate(filter.Page, filter.Limit)
	respondPage(w, "products retrieved", products, newMeta(filter.Page, effectiveLimit, total))
}

// GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := positiveIDParam(w, r, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "product retrieved", product)
}

// GET /api/product-variant?productId=
func (h *ProductHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := queryInt(r, "productId")
	if !ok || productID == 0 {
		respondError(w, http.StatusBadRequest, "productId must be a positive integer")
		return
	}

	variants, err := h.catalog.ListVariants(ctx, productID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if variants == nil {
		variants = []*domain.Variant{}
	}
	respondJSON(w, http.StatusOK, "variants retrieved", variants)
}

// GET /public/brands/{categoryId}
func (h *ProductHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categoryID, ok := positiveIDParam(w, r, "categoryId")
	if !ok {
		return
	}

	brands, err := h.catalog.ListBrandsByCategory(ctx, categoryID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "brands retrieved", brands)
}

// GET /public/attribute-types/{categoryId}
func (h *ProductHandler) ListAttributeTypes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categoryID, ok := positiveIDParam(w, r, "categoryId")
	if !ok {
		return
	}

	types, err := h.catalog.ListAttributeTypesByCategory(ctx, categoryID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, "attribute types retrieved", types)
}
