package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/costco-scraper/internal/browser"
	"github.com/maltedev/costco-scraper/internal/config"
	"github.com/maltedev/costco-scraper/internal/parser"
	"github.com/maltedev/costco-scraper/internal/ratelimit"
)

const warehouseStepTimeout = 10 * time.Second

// Session owns the single page used for the whole run.
type Session struct {
	browser   *browser.Browser
	page      playwright.Page
	store     config.StoreConfig
	cfg       config.ScraperConfig
	selectors parser.Selectors
	logger    *slog.Logger
}

func NewSession(b *browser.Browser, cfg *config.Config, selectors parser.Selectors, logger *slog.Logger) (*Session, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}

	return &Session{
		browser:   b,
		page:      page,
		store:     cfg.Store,
		cfg:       cfg.Scraper,
		selectors: selectors,
		logger:    logger.With("component", "session"),
	}, nil
}

// Bootstrap opens the home page and tries to pin the configured warehouse. It only
// fails when the home page itself cannot be loaded; the returned flag reports
// whether the warehouse was confirmed.
func (s *Session) Bootstrap(ctx context.Context) (bool, error) {
	s.logger.Info("opening home page", "url", s.store.BaseURL)

	if err := s.browser.NavigateWithRetry(ctx, s.page, s.store.BaseURL, s.cfg.NavigationAttempts); err != nil {
		return false, fmt.Errorf("%w: %v", ErrHomePage, err)
	}

	if err := s.SetWarehouse(ctx); err != nil {
		s.logger.Warn("could not set warehouse, continuing with site default",
			"zip", s.store.Zip,
			"error", err,
		)
		return false, nil
	}

	s.logger.Info("warehouse set", "store", s.store.Name, "zip", s.store.Zip)
	return true, nil
}

// SetWarehouse runs the warehouse picker: open it, search by ZIP, pick the match.
func (s *Session) SetWarehouse(ctx context.Context) error {
	timeout := playwright.Float(float64(warehouseStepTimeout.Milliseconds()))

	trigger := s.page.Locator(s.selectors.WarehouseTrigger).First()
	if err := trigger.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	}); err != nil {
		return fmt.Errorf("warehouse control not visible: %w", err)
	}
	if err := trigger.Click(playwright.LocatorClickOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("failed to open warehouse picker: %w", err)
	}

	input := s.page.Locator(s.selectors.ZipInput).First()
	if err := input.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	}); err != nil {
		return fmt.Errorf("zip input not visible: %w", err)
	}
	if err := input.Fill(s.store.Zip, playwright.LocatorFillOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("failed to fill zip: %w", err)
	}

	if err := s.page.Locator(s.selectors.ZipSubmit).First().Click(playwright.LocatorClickOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("failed to submit zip: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	option := s.page.Locator(s.selectors.WarehouseOptionFor(s.store.Zip)).First()
	if err := option.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	}); err != nil {
		return fmt.Errorf("no warehouse result for %s: %w", s.store.Zip, err)
	}
	if err := option.Click(playwright.LocatorClickOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("failed to select warehouse: %w", err)
	}

	return nil
}

// LoadCategory navigates to url, waits for cards to render, scrolls to trigger lazy
// loading and returns the page HTML. A missing card selector is not an error here;
// the extractor reports the empty page.
func (s *Session) LoadCategory(ctx context.Context, url string) (string, error) {
	if err := s.browser.NavigateWithRetry(ctx, s.page, url, s.cfg.NavigationAttempts); err != nil {
		return "", fmt.Errorf("failed to navigate to category: %w", err)
	}

	if _, err := s.page.WaitForSelector(s.selectors.CardWaitSelector(), playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(s.cfg.CardWaitTimeout.Milliseconds())),
	}); err != nil {
		s.logger.Warn("no card selector appeared", "url", url, "error", err)
	}

	if err := ratelimit.Sleep(ctx, s.cfg.SettleDelay); err != nil {
		return "", err
	}

	if err := s.browser.ScrollPage(ctx, s.page, s.cfg.ScrollSteps, s.cfg.ScrollPause); err != nil {
		return "", err
	}

	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}

	return html, nil
}

func (s *Session) Close() error {
	if s.page == nil {
		return nil
	}
	return s.page.Close()
}
