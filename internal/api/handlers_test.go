package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/costco-scraper/internal/database"
	"github.com/maltedev/costco-scraper/internal/metrics"
	"github.com/maltedev/costco-scraper/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) ListProducts(ctx context.Context, filter database.ProductFilter) ([]*models.Product, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockStore) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockStore) GetProductByURL(ctx context.Context, productURL string) (*models.Product, error) {
	args := m.Called(ctx, productURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockStore) CountByCategory(ctx context.Context) (map[models.Category]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.Category]int), args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ScrapeRun), args.Error(1)
}

type MockOutboxStats struct {
	mock.Mock
}

func (m *MockOutboxStats) CountByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func newTestServer(store Store, outbox OutboxStats) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(NewHandlers(store, outbox, logger), metrics.NewAPIMetrics(), RouterOptions{})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func chicken() *models.Product {
	return &models.Product{
		ID:                uuid.New(),
		ProductURL:        "https://www.costco.com/p/123",
		Name:              "Organic Chicken Breast",
		Category:          models.CategoryMeatSeafood,
		Price:             models.FloatPtr(14.99),
		InStock:           true,
		WarehouseLocation: "Sandy, UT",
	}
}

func TestHealth(t *testing.T) {
	t.Run("ok without outbox", func(t *testing.T) {
		store := new(MockStore)
		store.On("Ping", mock.Anything).Return(nil)

		rec := get(t, newTestServer(store, nil), "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		store := new(MockStore)
		store.On("Ping", mock.Anything).Return(errors.New("connection refused"))

		rec := get(t, newTestServer(store, nil), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("dead letters fail the check", func(t *testing.T) {
		store := new(MockStore)
		store.On("Ping", mock.Anything).Return(nil)
		outbox := new(MockOutboxStats)
		outbox.On("CountByStatus", mock.Anything).Return(map[string]int64{
			database.OutboxStatusPending:    3,
			database.OutboxStatusFailed:     2,
			database.OutboxStatusDeadLetter: 101,
		}, nil)

		rec := get(t, newTestServer(store, outbox), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, map[string]interface{}{"pending": 5.0, "dead_letter": 101.0}, body["outbox"])
	})
}

func TestListProducts(t *testing.T) {
	store := new(MockStore)
	p := chicken()
	store.On("ListProducts", mock.Anything, database.ProductFilter{
		Category: models.CategoryMeatSeafood,
		Limit:    10,
		Offset:   20,
	}).Return([]*models.Product{p}, nil)

	rec := get(t, newTestServer(store, nil), "/api/v1/products?category=meat_seafood&limit=10&offset=20")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProductListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 10, resp.Limit)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, p.ID, resp.Products[0].ID)
	assert.InDelta(t, 14.99, *resp.Products[0].Price, 0.0001)
}

func TestListProductsEmpty(t *testing.T) {
	store := new(MockStore)
	store.On("ListProducts", mock.Anything, database.ProductFilter{Limit: defaultLimit}).Return(nil, nil)

	rec := get(t, newTestServer(store, nil), "/api/v1/products")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"products":[],"count":0,"limit":50,"offset":0}`, rec.Body.String())
}

func TestListProductsBadParams(t *testing.T) {
	srv := newTestServer(new(MockStore), nil)

	for _, target := range []string{
		"/api/v1/products?category=toys",
		"/api/v1/products?limit=0",
		"/api/v1/products?limit=abc",
		"/api/v1/products?offset=-1",
	} {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, get(t, srv, target).Code)
		})
	}
}

func TestGetProduct(t *testing.T) {
	p := chicken()
	missing := uuid.New()

	store := new(MockStore)
	store.On("GetProductByID", mock.Anything, p.ID).Return(p, nil)
	store.On("GetProductByID", mock.Anything, missing).Return(nil, database.ErrNotFound)
	srv := newTestServer(store, nil)

	rec := get(t, srv, "/api/v1/products/"+p.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Organic Chicken Breast", got.Name)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/products/"+missing.String()).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/products/not-a-uuid").Code)
}

func TestLookupProduct(t *testing.T) {
	p := chicken()
	store := new(MockStore)
	store.On("GetProductByURL", mock.Anything, p.ProductURL).Return(p, nil)
	store.On("GetProductByURL", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	srv := newTestServer(store, nil)

	rec := get(t, srv, "/api/v1/products/lookup?url="+url.QueryEscape(p.ProductURL))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/products/lookup").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, srv, "/api/v1/products/lookup?url=x").Code)
}

func TestGetStats(t *testing.T) {
	store := new(MockStore)
	store.On("CountByCategory", mock.Anything).Return(map[models.Category]int{
		models.CategoryMeatSeafood: 12,
		models.CategoryDeli:        8,
	}, nil)

	rec := get(t, newTestServer(store, nil), "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":20,"categories":{"meat_seafood":12,"deli":8}}`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	store := new(MockStore)
	store.On("ListRuns", mock.Anything, 5).Return([]*models.ScrapeRun{
		{ID: uuid.New(), Status: models.RunStatusCompleted, WarehouseZip: "84070", WarehouseConfirmed: false, RecordsWritten: 40},
	}, nil)
	srv := newTestServer(store, nil)

	rec := get(t, srv, "/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, false, runs[0]["warehouse_confirmed"])
	assert.Equal(t, 40.0, runs[0]["records_written"])

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/runs?limit=1000").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	store := new(MockStore)
	store.On("Ping", mock.Anything).Return(nil)
	srv := newTestServer(store, nil)

	get(t, srv, "/health")
	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `costco_api_requests_total{code="200",route="/health"} 1`)
}
