package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maltedev/costco-scraper/internal/database"
	"github.com/maltedev/costco-scraper/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

// Store is the read side of the product database.
type Store interface {
	Ping(ctx context.Context) error
	ListProducts(ctx context.Context, filter database.ProductFilter) ([]*models.Product, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductByURL(ctx context.Context, productURL string) (*models.Product, error)
	CountByCategory(ctx context.Context) (map[models.Category]int, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error)
}

type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type Handlers struct {
	store  Store
	outbox OutboxStats
	logger *slog.Logger
}

// NewHandlers builds the API handlers. outbox may be nil when events are disabled.
func NewHandlers(store Store, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

type ProductListResponse struct {
	Products []*models.Product `json:"products"`
	Count    int               `json:"count"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type StatsResponse struct {
	Total      int                     `json:"total"`
	Categories map[models.Category]int `json:"categories"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("database ping failed", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "error",
			"message": "database unavailable",
		})
		return
	}

	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox counts", "error", err)
		} else {
			pending := counts[database.OutboxStatusPending] + counts[database.OutboxStatusFailed]
			deadLetter := counts[database.OutboxStatusDeadLetter]
			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": deadLetter,
			}

			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "high number of pending outbox events"
			}
			if deadLetter > deadLetterFailThreshold {
				health["status"] = "error"
				health["message"] = "high number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.ProductFilter{}

	if raw := q.Get("category"); raw != "" {
		category, err := models.ParseCategory(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Category = category
	}

	limit, err := intParam(q.Get("limit"), defaultLimit)
	if err != nil || limit < 1 || limit > maxLimit {
		h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		h.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	products, err := h.store.ListProducts(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []*models.Product{}
	}

	h.respondJSON(w, http.StatusOK, ProductListResponse{
		Products: products,
		Count:    len(products),
		Limit:    limit,
		Offset:   offset,
	})
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.store.GetProductByID(r.Context(), id)
	h.respondProduct(w, product, err)
}

func (h *Handlers) LookupProduct(w http.ResponseWriter, r *http.Request) {
	productURL := r.URL.Query().Get("url")
	if productURL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	product, err := h.store.GetProductByURL(r.Context(), productURL)
	h.respondProduct(w, product, err)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByCategory(r.Context())
	if err != nil {
		h.logger.Error("failed to count products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	h.respondJSON(w, http.StatusOK, StatsResponse{Total: total, Categories: counts})
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 20)
	if err != nil || limit < 1 || limit > maxLimit {
		h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*models.ScrapeRun{}
	}

	h.respondJSON(w, http.StatusOK, runs)
}

func (h *Handlers) respondProduct(w http.ResponseWriter, product *models.Product, err error) {
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get product", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
