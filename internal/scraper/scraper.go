package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/costco-scraper/internal/models"
)

var (
	ErrHomePage = errors.New("home page could not be loaded")
	ErrNoCards  = errors.New("no products found")
)

// PageLoader returns the rendered HTML of a category listing.
type PageLoader interface {
	LoadCategory(ctx context.Context, url string) (string, error)
}

// Sink persists one normalized record and reports whether it was newly inserted.
type Sink interface {
	UpsertProduct(ctx context.Context, p *models.Product) (bool, error)
}

// Delayer blocks between categories.
type Delayer interface {
	Pause(ctx context.Context) error
}
