package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantNotFound   = errors.New("product variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository is the SQLite catalog: products, variants with their stock,
// brands and attribute types.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// a single connection keeps :memory: databases shared and serialises stock writes
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// ListProducts returns one page of products matching the filter and the total match count.
func (r *Repository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error) {
	var where []string
	var args []any
	if filter.CategoryID > 0 {
		where = append(where, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.BrandID > 0 {
		where = append(where, "brand_id = ?")
		args = append(args, filter.BrandID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, "name LIKE '%' || ? || '%'")
		args = append(args, s)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	limit, offset := Paginate(filter.Page, filter.Limit)
	query := `SELECT id, category_id, brand_id, name, description, image_url, created_at
		FROM products` + clause + `
		ORDER BY id
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0, limit)
	for rows.Next() {
		p := &domain.Product{}
		err := rows.Scan(
			&p.ID,
			&p.CategoryID,
			&p.BrandID,
			&p.Name,
			&p.Description,
			&p.ImageURL,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return products, total, nil
}

// Paginate normalises a page request into LIMIT and OFFSET values.
func Paginate(page, limit int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, category_id, brand_id, name, description, image_url, created_at
		FROM products
		WHERE id = ?
	`

	p := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.CategoryID,
		&p.BrandID,
		&p.Name,
		&p.Description,
		&p.ImageURL,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

const variantSelect = `
	SELECT v.id, v.product_id, p.name, v.sku, v.name, v.price, v.stock
	FROM variants v
	JOIN products p ON p.id = v.product_id
`

func scanVariants(rows *sql.Rows) ([]*domain.Variant, error) {
	defer rows.Close()

	var variants []*domain.Variant
	for rows.Next() {
		v := &domain.Variant{}
		if err := rows.Scan(&v.ID, &v.ProductID, &v.ProductName, &v.SKU, &v.Name, &v.Price, &v.Stock); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return variants, nil
}

// ListVariants returns the variants of a product; an unknown product yields ErrProductNotFound.
func (r *Repository) ListVariants(ctx context.Context, productID int64) ([]*domain.Variant, error) {
	if _, err := r.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, variantSelect+" WHERE v.product_id = ? ORDER BY v.id", productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	return scanVariants(rows)
}

func (r *Repository) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	v := &domain.Variant{}
	err := r.db.QueryRowContext(ctx, variantSelect+" WHERE v.id = ?", id).
		Scan(&v.ID, &v.ProductID, &v.ProductName, &v.SKU, &v.Name, &v.Price, &v.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query variant: %w", err)
	}
	return v, nil
}

// GetVariants loads several variants at once. Unknown ids are absent from the result.
func (r *Repository) GetVariants(ctx context.Context, ids []int64) (map[int64]*domain.Variant, error) {
	result := make(map[int64]*domain.Variant, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := variantSelect + " WHERE v.id IN (" + strings.Join(placeholders, ", ") + ")"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}

	variants, err := scanVariants(rows)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		result[v.ID] = v
	}
	return result, nil
}

func (r *Repository) ListBrandsByCategory(ctx context.Context, categoryID int64) ([]*domain.Brand, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category_id, name FROM brands WHERE category_id = ? ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query brands: %w", err)
	}
	defer rows.Close()

	brands := make([]*domain.Brand, 0)
	for rows.Next() {
		b := &domain.Brand{}
		if err := rows.Scan(&b.ID, &b.CategoryID, &b.Name); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (r *Repository) ListAttributeTypesByCategory(ctx context.Context, categoryID int64) ([]*domain.AttributeType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category_id, name FROM attribute_types WHERE category_id = ? ORDER BY id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribute types: %w", err)
	}
	defer rows.Close()

	types := make([]*domain.AttributeType, 0)
	for rows.Next() {
		a := &domain.AttributeType{}
		if err := rows.Scan(&a.ID, &a.CategoryID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan attribute type: %w", err)
		}
		types = append(types, a)
	}
	return types, rows.Err()
}

// ReserveStock decrements stock for every line or for none of them.
func (r *Repository) ReserveStock(ctx context.Context, lines []domain.StockLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, line := range lines {
		res, err := tx.ExecContext(ctx,
			`UPDATE variants SET stock = stock - ? WHERE id = ? AND stock >= ?`,
			line.Quantity, line.VariantID, line.Quantity)
		if err != nil {
			return fmt.Errorf("failed to reserve stock for variant %d: %w", line.VariantID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to reserve stock for variant %d: %w", line.VariantID, err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM variants WHERE id = ?`, line.VariantID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrVariantNotFound, line.VariantID)
			}
			if err != nil {
				return fmt.Errorf("failed to query variant %d: %w", line.VariantID, err)
			}
			return fmt.Errorf("%w for variant %d", ErrInsufficientStock, line.VariantID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RestoreStock returns previously reserved quantities.
func (r *Repository) RestoreStock(ctx context.Context, lines []domain.StockLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx,
			`UPDATE variants SET stock = stock + ? WHERE id = ?`, line.Quantity, line.VariantID); err != nil {
			return fmt.Errorf("failed to restore stock for variant %d: %w", line.VariantID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
