package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/costco-scraper/internal/models"
)

func chickenBreast() *models.Product {
	return &models.Product{
		ProductURL:         "https://www.costco.com/p/123",
		Name:               "Organic Chicken Breast",
		Brand:              models.StringPtr("Kirkland Signature"),
		Category:           models.CategoryMeatSeafood,
		Price:              models.FloatPtr(14.99),
		UnitPrice:          models.StringPtr("$14.99/lb"),
		InStock:            true,
		WarehouseLocation:  "Sandy, UT",
		WarehouseConfirmed: true,
		LastScrapedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestUpsertProduct(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	first := chickenBreast()
	inserted, err := db.UpsertProduct(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, uuid.Nil, first.ID)

	second := chickenBreast()
	second.Price = models.FloatPtr(13.49)
	second.InStock = false
	inserted, err = db.UpsertProduct(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	stored, err := db.GetProductByURL(ctx, "https://www.costco.com/p/123")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	require.NotNil(t, stored.Price)
	assert.InDelta(t, 13.49, *stored.Price, 0.001)
	assert.False(t, stored.InStock)
	assert.Equal(t, "$14.99/lb", *stored.UnitPrice)
	assert.Equal(t, models.CategoryMeatSeafood, stored.Category)

	var count int
	require.NoError(t, db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM costco_products").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpsertProductKeepsNutrition(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	calories := 120
	withNutrition := chickenBreast()
	withNutrition.Nutrition.Calories = &calories
	withNutrition.RawSpecifications = json.RawMessage(`{"origin":"USA"}`)
	_, err := db.UpsertProduct(ctx, withNutrition)
	require.NoError(t, err)

	_, err = db.UpsertProduct(ctx, chickenBreast())
	require.NoError(t, err)

	stored, err := db.GetProductByURL(ctx, withNutrition.ProductURL)
	require.NoError(t, err)
	require.NotNil(t, stored.Nutrition.Calories)
	assert.Equal(t, 120, *stored.Nutrition.Calories)
	assert.JSONEq(t, `{"origin":"USA"}`, string(stored.RawSpecifications))
}

func TestUpsertProductRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	p := chickenBreast()
	p.Name = ""
	_, err := db.UpsertProduct(ctx, p)
	assert.ErrorContains(t, err, "name is required")
}

func TestProductQueries(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	chicken := chickenBreast()
	_, err := db.UpsertProduct(ctx, chicken)
	require.NoError(t, err)

	hummus := &models.Product{
		ProductURL:        "https://www.costco.com/hummus.product.5.html",
		Name:              "Hummus, 32 oz",
		Category:          models.CategoryDeli,
		PackageSize:       models.StringPtr("32 oz"),
		InStock:           true,
		WarehouseLocation: "Sandy, UT",
		LastScrapedAt:     time.Now().UTC(),
	}
	_, err = db.UpsertProduct(ctx, hummus)
	require.NoError(t, err)

	byID, err := db.GetProductByID(ctx, hummus.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hummus, 32 oz", byID.Name)
	assert.Nil(t, byID.Price)
	assert.Nil(t, byID.Brand)

	_, err = db.GetProductByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetProductByURL(ctx, "https://www.costco.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	deli, err := db.ListProducts(ctx, ProductFilter{Category: models.CategoryDeli})
	require.NoError(t, err)
	require.Len(t, deli, 1)
	assert.Equal(t, hummus.ID, deli[0].ID)

	all, err := db.ListProducts(ctx, ProductFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	counts, err := db.CountByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Category]int{
		models.CategoryMeatSeafood: 1,
		models.CategoryDeli:        1,
	}, counts)
}
