package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/costco-scraper/internal/config"
	"github.com/maltedev/costco-scraper/internal/models"
	"github.com/maltedev/costco-scraper/internal/normalize"
	"github.com/maltedev/costco-scraper/internal/parser"
)

type CategoryStatus string

const (
	CategoryOK     CategoryStatus = "ok"
	CategoryEmpty  CategoryStatus = "empty"
	CategoryFailed CategoryStatus = "failed"
)

type CategoryResult struct {
	Category   models.Category
	URL        string
	Status     CategoryStatus
	Selector   string
	CardsFound int
	// Discarded cards carried neither a name nor a link.
	Discarded int
	// Skipped cards had a name or a link but not both.
	Skipped int
	// Duplicates repeat a product URL already saved from the same page.
	Duplicates int
	Inserted   int
	Updated    int
	// Failed counts records the sink rejected.
	Failed   int
	Duration time.Duration
	Err      error
}

// Written counts records that reached the table.
func (r CategoryResult) Written() int {
	return r.Inserted + r.Updated
}

type RunSummary struct {
	StartedAt          time.Time
	FinishedAt         time.Time
	WarehouseConfirmed bool
	Categories         []CategoryResult
	Interrupted        bool
}

func (s *RunSummary) CategoriesOK() int {
	n := 0
	for _, c := range s.Categories {
		if c.Status == CategoryOK {
			n++
		}
	}
	return n
}

// CategoriesFailed counts empty and failed categories together.
func (s *RunSummary) CategoriesFailed() int {
	return len(s.Categories) - s.CategoriesOK()
}

func (s *RunSummary) Inserted() int {
	n := 0
	for _, c := range s.Categories {
		n += c.Inserted
	}
	return n
}

func (s *RunSummary) Updated() int {
	n := 0
	for _, c := range s.Categories {
		n += c.Updated
	}
	return n
}

func (s *RunSummary) RecordsWritten() int {
	return s.Inserted() + s.Updated()
}

func (s *RunSummary) RecordsFailed() int {
	n := 0
	for _, c := range s.Categories {
		n += c.Failed
	}
	return n
}

func (s *RunSummary) RecordsSkipped() int {
	n := 0
	for _, c := range s.Categories {
		n += c.Skipped
	}
	return n
}

func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Runner walks the configured categories in order and feeds every card through
// extraction, normalization and the sink.
type Runner struct {
	loader     PageLoader
	extractor  parser.CardExtractor
	sink       Sink
	delayer    Delayer
	categories []config.CategoryConfig
	warehouse  string
	logger     *slog.Logger
	now        func() time.Time
}

func NewRunner(
	loader PageLoader,
	extractor parser.CardExtractor,
	sink Sink,
	delayer Delayer,
	cfg *config.Config,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		loader:     loader,
		extractor:  extractor,
		sink:       sink,
		delayer:    delayer,
		categories: cfg.Categories,
		warehouse:  cfg.Store.Name,
		logger:     logger.With("component", "runner"),
		now:        time.Now,
	}
}

// Run scrapes every category once. Category and record failures are logged and
// counted; only cancellation of ctx ends the walk early, in which case the partial
// summary is returned together with the context error. A category cut short by
// cancellation is marked failed.
func (r *Runner) Run(ctx context.Context, warehouseConfirmed bool) (*RunSummary, error) {
	summary := &RunSummary{
		StartedAt:          r.now(),
		WarehouseConfirmed: warehouseConfirmed,
	}

	opts := normalize.Options{
		WarehouseLocation:  r.warehouse,
		WarehouseConfirmed: warehouseConfirmed,
	}

	var runErr error
	for i, cat := range r.categories {
		if i > 0 {
			if err := r.delayer.Pause(ctx); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		r.logger.Info("scraping category",
			"progress", fmt.Sprintf("[%d/%d]", i+1, len(r.categories)),
			"category", cat.Tag,
			"url", cat.URL,
		)

		opts.ScrapedAt = r.now()
		result := r.scrapeCategory(ctx, cat, opts)
		summary.Categories = append(summary.Categories, result)
		r.logCategory(result)

		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
	}

	summary.FinishedAt = r.now()
	summary.Interrupted = runErr != nil

	r.logger.Info("run finished",
		"categories_ok", summary.CategoriesOK(),
		"categories_failed", summary.CategoriesFailed(),
		"inserted", summary.Inserted(),
		"updated", summary.Updated(),
		"records_written", summary.RecordsWritten(),
		"records_failed", summary.RecordsFailed(),
		"records_skipped", summary.RecordsSkipped(),
		"interrupted", summary.Interrupted,
		"warehouse_confirmed", summary.WarehouseConfirmed,
		"duration", summary.Duration(),
	)

	return summary, runErr
}

func (r *Runner) scrapeCategory(ctx context.Context, cat config.CategoryConfig, opts normalize.Options) (result CategoryResult) {
	start := r.now()
	result = CategoryResult{Category: cat.Tag, URL: cat.URL}
	defer func() {
		result.Duration = r.now().Sub(start)
	}()

	html, err := r.loader.LoadCategory(ctx, cat.URL)
	if err != nil {
		result.Status = CategoryFailed
		result.Err = err
		return result
	}

	extracted, err := r.extractor.ExtractCards(html)
	if err != nil {
		result.Status = CategoryFailed
		result.Err = err
		return result
	}

	result.Selector = extracted.Selector
	result.CardsFound = extracted.Found
	result.Discarded = extracted.Discarded

	if len(extracted.Cards) == 0 {
		result.Status = CategoryEmpty
		result.Err = ErrNoCards
		return result
	}

	r.logger.Debug("cards matched", "category", cat.Tag, "selector", extracted.Selector, "count", len(extracted.Cards))

	seen := make(map[string]bool, len(extracted.Cards))
	for i, card := range extracted.Cards {
		if err := ctx.Err(); err != nil {
			result.Status = CategoryFailed
			result.Err = err
			return result
		}

		product, err := normalize.Card(card, cat.Tag, opts)
		if err != nil {
			result.Skipped++
			r.logger.Warn("skipping card",
				"category", cat.Tag,
				"name", card.Name,
				"url", card.ProductURL,
				"error", err,
			)
			continue
		}

		if seen[product.ProductURL] {
			result.Duplicates++
			r.logger.Debug("duplicate card on page", "category", cat.Tag, "url", product.ProductURL)
			continue
		}
		seen[product.ProductURL] = true

		inserted, err := r.sink.UpsertProduct(ctx, product)
		if err != nil {
			result.Failed++
			r.logger.Error("failed to save product",
				"category", cat.Tag,
				"name", product.Name,
				"url", product.ProductURL,
				"error", err,
			)
			continue
		}

		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}

		r.logger.Debug("saved product",
			"progress", fmt.Sprintf("[%d/%d]", i+1, len(extracted.Cards)),
			"name", product.Name,
			"inserted", inserted,
		)
	}

	result.Status = CategoryOK
	return result
}

func (r *Runner) logCategory(result CategoryResult) {
	switch {
	case errors.Is(result.Err, ErrNoCards):
		r.logger.Warn("no products found",
			"category", result.Category,
			"url", result.URL,
		)
	case errors.Is(result.Err, context.Canceled), errors.Is(result.Err, context.DeadlineExceeded):
		r.logger.Warn("category interrupted",
			"category", result.Category,
			"inserted", result.Inserted,
			"updated", result.Updated,
		)
	case result.Err != nil:
		r.logger.Error("category failed, skipping",
			"category", result.Category,
			"url", result.URL,
			"error", result.Err,
		)
	default:
		r.logger.Info("category complete",
			"category", result.Category,
			"selector", result.Selector,
			"cards", result.CardsFound,
			"discarded", result.Discarded,
			"skipped", result.Skipped,
			"duplicates", result.Duplicates,
			"inserted", result.Inserted,
			"updated", result.Updated,
			"failed", result.Failed,
			"duration", result.Duration,
		)
	}
}
