package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/costco-scraper/internal/database"
	"github.com/maltedev/costco-scraper/internal/models"
)

type EventType string

const (
	EventTypeProductCreated EventType = "PRODUCT_CREATED"
	EventTypeProductUpdated EventType = "PRODUCT_UPDATED"

	AggregateTypeProduct = "costco_product"
)

// ProductChangedPayload is the outbox payload written for every upserted product.
type ProductChangedPayload struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Product   *models.Product `json:"product"`
}

type Store interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
	UpsertProductTx(ctx context.Context, tx pgx.Tx, p *models.Product) (bool, error)
}

type Outbox interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher is a product sink that writes the row and its change event in one
// transaction.
type Publisher struct {
	store  Store
	outbox Outbox
	stream string
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(store Store, outbox Outbox, stream string, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		outbox: outbox,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

// UpsertProduct stores p and enqueues PRODUCT_CREATED or PRODUCT_UPDATED. Neither
// is kept when either write fails.
func (p *Publisher) UpsertProduct(ctx context.Context, product *models.Product) (bool, error) {
	var inserted bool

	err := p.store.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		inserted, err = p.store.UpsertProductTx(ctx, tx, product)
		if err != nil {
			return err
		}

		event, err := p.buildEvent(product, inserted)
		if err != nil {
			return err
		}

		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return false, fmt.Errorf("failed to publish product change: %w", err)
	}

	p.logger.Debug("product change queued",
		"url", product.ProductURL,
		"inserted", inserted,
	)

	return inserted, nil
}

func (p *Publisher) buildEvent(product *models.Product, inserted bool) (*database.OutboxEvent, error) {
	eventType := EventTypeProductUpdated
	if inserted {
		eventType = EventTypeProductCreated
	}

	payload := ProductChangedPayload{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: p.now().UTC(),
		Source:    "costco-scraper",
		Product:   product,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: AggregateTypeProduct,
		AggregateID:   product.ProductURL,
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  p.stream,
	}, nil
}
