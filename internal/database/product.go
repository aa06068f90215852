package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/costco-scraper/internal/models"
)

// Nutrition and raw_specifications come from detail pages; a listing run that has
// none must not erase values already stored, hence COALESCE on those columns.
const upsertProductSQL = `
	INSERT INTO costco_products (
		id, product_url, name, brand, category, image_url,
		price, unit_price, package_size, in_stock,
		warehouse_location, warehouse_confirmed,
		calories, protein, carbs, fat, sodium, fiber, sugar,
		serving_size, ingredients, allergens,
		raw_details, raw_specifications, last_scraped_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
	)
	ON CONFLICT (product_url) DO UPDATE SET
		name = EXCLUDED.name,
		brand = EXCLUDED.brand,
		category = EXCLUDED.category,
		image_url = EXCLUDED.image_url,
		price = EXCLUDED.price,
		unit_price = EXCLUDED.unit_price,
		package_size = EXCLUDED.package_size,
		in_stock = EXCLUDED.in_stock,
		warehouse_location = EXCLUDED.warehouse_location,
		warehouse_confirmed = EXCLUDED.warehouse_confirmed,
		calories = COALESCE(EXCLUDED.calories, costco_products.calories),
		protein = COALESCE(EXCLUDED.protein, costco_products.protein),
		carbs = COALESCE(EXCLUDED.carbs, costco_products.carbs),
		fat = COALESCE(EXCLUDED.fat, costco_products.fat),
		sodium = COALESCE(EXCLUDED.sodium, costco_products.sodium),
		fiber = COALESCE(EXCLUDED.fiber, costco_products.fiber),
		sugar = COALESCE(EXCLUDED.sugar, costco_products.sugar),
		serving_size = COALESCE(EXCLUDED.serving_size, costco_products.serving_size),
		ingredients = COALESCE(EXCLUDED.ingredients, costco_products.ingredients),
		allergens = COALESCE(EXCLUDED.allergens, costco_products.allergens),
		raw_details = EXCLUDED.raw_details,
		raw_specifications = COALESCE(EXCLUDED.raw_specifications, costco_products.raw_specifications),
		last_scraped_at = EXCLUDED.last_scraped_at,
		updated_at = NOW()
	RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

const productColumns = `
	id, product_url, name, brand, category, image_url,
	price, unit_price, package_size, in_stock,
	warehouse_location, warehouse_confirmed,
	calories, protein, carbs, fat, sodium, fiber, sugar,
	serving_size, ingredients, allergens,
	raw_details, raw_specifications,
	last_scraped_at, created_at, updated_at`

// UpsertProduct writes p keyed by its product URL and reports whether a new row
// was created. On return p carries the stored id and timestamps.
func (db *DB) UpsertProduct(ctx context.Context, p *models.Product) (bool, error) {
	return upsertProduct(ctx, db.pool, p)
}

// UpsertProductTx is UpsertProduct inside a caller-owned transaction.
func (db *DB) UpsertProductTx(ctx context.Context, tx pgx.Tx, p *models.Product) (bool, error) {
	return upsertProduct(ctx, tx, p)
}

func upsertProduct(ctx context.Context, q querier, p *models.Product) (bool, error) {
	if errs := p.Validate(); len(errs) > 0 {
		return false, fmt.Errorf("invalid product: %s", strings.Join(errs, "; "))
	}

	// The candidate id is only kept when the row is new.
	candidate := uuid.New()
	n := p.Nutrition

	var inserted bool
	err := q.QueryRow(ctx, upsertProductSQL,
		candidate, p.ProductURL, p.Name, p.Brand, string(p.Category), p.ImageURL,
		p.Price, p.UnitPrice, p.PackageSize, p.InStock,
		p.WarehouseLocation, p.WarehouseConfirmed,
		n.Calories, n.Protein, n.Carbs, n.Fat, n.Sodium, n.Fiber, n.Sugar,
		n.ServingSize, n.Ingredients, n.Allergens,
		p.RawDetails, p.RawSpecifications, p.LastScrapedAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert product: %w", err)
	}

	return inserted, nil
}

func (db *DB) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM costco_products WHERE id = $1`
	return scanProduct(db.pool.QueryRow(ctx, query, id))
}

func (db *DB) GetProductByURL(ctx context.Context, productURL string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM costco_products WHERE product_url = $1`
	return scanProduct(db.pool.QueryRow(ctx, query, productURL))
}

type ProductFilter struct {
	Category models.Category
	Limit    int
	Offset   int
}

// ListProducts returns products ordered by most recently scraped.
func (db *DB) ListProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT ` + productColumns + ` FROM costco_products
		WHERE ($1 = '' OR category = $1)
		ORDER BY last_scraped_at DESC, name ASC
		LIMIT $2 OFFSET $3`

	rows, err := db.pool.Query(ctx, query, string(filter.Category), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// CountByCategory returns the number of stored products per category.
func (db *DB) CountByCategory(ctx context.Context) (map[models.Category]int, error) {
	rows, err := db.pool.Query(ctx, `SELECT category, COUNT(*) FROM costco_products GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Category]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.Category(category)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	var category string
	n := &p.Nutrition

	err := row.Scan(
		&p.ID, &p.ProductURL, &p.Name, &p.Brand, &category, &p.ImageURL,
		&p.Price, &p.UnitPrice, &p.PackageSize, &p.InStock,
		&p.WarehouseLocation, &p.WarehouseConfirmed,
		&n.Calories, &n.Protein, &n.Carbs, &n.Fat, &n.Sodium, &n.Fiber, &n.Sugar,
		&n.ServingSize, &n.Ingredients, &n.Allergens,
		&p.RawDetails, &p.RawSpecifications,
		&p.LastScrapedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	p.Category = models.Category(category)
	return &p, nil
}
