package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/costco-scraper/internal/browser"
	"github.com/maltedev/costco-scraper/internal/config"
	"github.com/maltedev/costco-scraper/internal/database"
	"github.com/maltedev/costco-scraper/internal/events"
	"github.com/maltedev/costco-scraper/internal/metrics"
	"github.com/maltedev/costco-scraper/internal/models"
	"github.com/maltedev/costco-scraper/internal/parser"
	"github.com/maltedev/costco-scraper/internal/ratelimit"
	"github.com/maltedev/costco-scraper/internal/scraper"
	"github.com/maltedev/costco-scraper/pkg/logger"
)

// cleanupTimeout bounds the work done after the walk: run bookkeeping, outbox
// drain and metrics push. It also applies after an interrupt.
const cleanupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	headless := flag.Bool("headless", cfg.Browser.Headless, "run the browser without a window")
	flag.Parse()
	cfg.Browser.Headless = *headless

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()

	if err != nil {
		log.Error("scrape failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	var sink scraper.Sink = db
	var relay *database.Relay
	if cfg.Redis.EventsEnabled {
		outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)
		sink = events.NewPublisher(db, outbox, cfg.Redis.Stream, log)

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, events stay in the outbox", "addr", cfg.Redis.Addr, "error", err)
		}
		relay = database.NewRelay(outbox, redisClient, log, database.RelayConfig{})
	}

	record, err := db.StartRun(ctx, cfg.Store.Zip)
	if err != nil {
		log.Warn("failed to record run start", "error", err)
	}

	summary, runErr := scrape(ctx, cfg, sink, log)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if record != nil {
		finishRecord(record, summary, runErr)
		if err := db.FinishRun(cleanupCtx, record); err != nil {
			log.Warn("failed to record run result", "run_id", record.ID, "error", err)
		}
	}

	if relay != nil {
		if _, err := relay.Drain(cleanupCtx); err != nil {
			log.Warn("failed to drain outbox", "error", err)
		}
	}

	if summary != nil && cfg.Metrics.PushgatewayURL != "" {
		m := metrics.NewScraperMetrics()
		m.ObserveRun(summary)
		if err := m.Push(cleanupCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			log.Warn("failed to push metrics", "error", err)
		}
	}

	return runErr
}

// scrape owns the browser for the duration of the walk.
func scrape(ctx context.Context, cfg *config.Config, sink scraper.Sink, log *slog.Logger) (*scraper.RunSummary, error) {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Scraper.PageTimeout
	opts.UserAgent = cfg.Browser.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale

	b, err := browser.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	selectors := parser.DefaultSelectors()

	session, err := scraper.NewSession(b, cfg, selectors, log)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	confirmed, err := session.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}

	extractor, err := parser.NewCardParser(cfg.Store.BaseURL, selectors)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewSimpleRateLimiter(cfg.Scraper.DelayMin, cfg.Scraper.DelayMax)
	runner := scraper.NewRunner(session, extractor, sink, limiter, cfg, log)

	summary, err := runner.Run(ctx, confirmed)
	if errors.Is(err, context.Canceled) {
		log.Warn("run interrupted", "categories_done", len(summary.Categories))
	}
	return summary, err
}

func finishRecord(record *models.ScrapeRun, summary *scraper.RunSummary, runErr error) {
	record.Status = models.RunStatusCompleted
	if runErr != nil {
		record.Status = models.RunStatusFailed
		record.Error = runErr.Error()
	}

	if summary == nil {
		return
	}

	record.WarehouseConfirmed = summary.WarehouseConfirmed
	record.CategoriesOK = summary.CategoriesOK()
	record.CategoriesFailed = summary.CategoriesFailed()
	record.RecordsWritten = summary.RecordsWritten()
	record.RecordsFailed = summary.RecordsFailed()
	record.RecordsSkipped = summary.RecordsSkipped()
	finished := summary.FinishedAt.UTC()
	record.FinishedAt = &finished
}
