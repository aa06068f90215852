package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/costco-scraper/internal/models"
)

// StartRun records the beginning of a batch run.
func (db *DB) StartRun(ctx context.Context, warehouseZip string) (*models.ScrapeRun, error) {
	run := &models.ScrapeRun{
		ID:           uuid.New(),
		StartedAt:    time.Now().UTC(),
		Status:       models.RunStatusRunning,
		WarehouseZip: warehouseZip,
	}

	query := `
		INSERT INTO scrape_runs (id, started_at, status, warehouse_zip)
		VALUES ($1, $2, $3, $4)`

	if _, err := db.pool.Exec(ctx, query, run.ID, run.StartedAt, string(run.Status), run.WarehouseZip); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	return run, nil
}

// FinishRun stores the final counters and status of run.
func (db *DB) FinishRun(ctx context.Context, run *models.ScrapeRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	var errorMessage *string
	if run.Error != "" {
		errorMessage = &run.Error
	}

	query := `
		UPDATE scrape_runs SET
			finished_at = $2,
			status = $3,
			warehouse_confirmed = $4,
			categories_ok = $5,
			categories_failed = $6,
			records_written = $7,
			records_failed = $8,
			records_skipped = $9,
			error_message = $10
		WHERE id = $1`

	result, err := db.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, string(run.Status), run.WarehouseConfirmed,
		run.CategoriesOK, run.CategoriesFailed, run.RecordsWritten, run.RecordsFailed,
		run.RecordsSkipped, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	return nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, started_at, finished_at, status, warehouse_zip, warehouse_confirmed,
			categories_ok, categories_failed, records_written, records_failed,
			records_skipped, COALESCE(error_message, '')
		FROM scrape_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScrapeRun
	for rows.Next() {
		run := &models.ScrapeRun{}
		var status string
		err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt, &status, &run.WarehouseZip, &run.WarehouseConfirmed,
			&run.CategoriesOK, &run.CategoriesFailed, &run.RecordsWritten, &run.RecordsFailed,
			&run.RecordsSkipped, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = models.RunStatus(status)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}
