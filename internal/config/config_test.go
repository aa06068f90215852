package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/costco-scraper/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Sandy, UT", cfg.Store.Name)
	assert.Equal(t, "84070", cfg.Store.Zip)
	assert.Equal(t, "https://www.costco.com", cfg.Store.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Scraper.DelayMin)
	assert.Equal(t, 3*time.Second, cfg.Scraper.DelayMax)
	assert.Equal(t, 3, cfg.Scraper.NavigationAttempts)
	assert.Equal(t, 5, cfg.Scraper.ScrollSteps)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.False(t, cfg.Redis.EventsEnabled)
	assert.Equal(t, 30*time.Second, cfg.Redis.RelayInterval)
	assert.Len(t, cfg.Categories, 8)
	assert.Equal(t, models.CategoryMeatSeafood, cfg.Categories[0].Tag)
	assert.Equal(t, models.CategoryMixtPantry, cfg.Categories[7].Tag)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", "")
	t.Setenv("STORE_ZIP", "84101")
	t.Setenv("SCRAPER_DELAY_MIN", "1s")
	t.Setenv("SCRAPER_DELAY_MAX", "1500ms")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("STORE_BASE_URL", "https://www.costco.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "84101", cfg.Store.Zip)
	assert.Equal(t, time.Second, cfg.Scraper.DelayMin)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scraper.DelayMax)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, "https://www.costco.com", cfg.Store.BaseURL)
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", "")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://fuelrx.app, ,https://admin.fuelrx.app")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://fuelrx.app", "https://admin.fuelrx.app"}, cfg.Server.AllowedOrigins)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", "")
	t.Setenv("SCRAPER_NAVIGATION_ATTEMPTS", "many")
	t.Setenv("SCRAPER_DELAY_MIN", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scraper.NavigationAttempts)
	assert.Equal(t, 2*time.Second, cfg.Scraper.DelayMin)
}

func TestLoadCategoriesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "categories.yaml")
	content := `categories:
  - tag: deli
    url: https://www.costco.com/deli.html
  - tag: snacks
    url: https://www.costco.com/snacks.html
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CATEGORIES_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Categories, 2)
	assert.Equal(t, models.CategoryDeli, cfg.Categories[0].Tag)
	assert.Equal(t, "https://www.costco.com/snacks.html", cfg.Categories[1].URL)
}

func TestLoadCategoriesFileMissing(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:      StoreConfig{Name: "Sandy, UT", Zip: "84070"},
			Categories: DefaultCategories(),
			Scraper:    ScraperConfig{DelayMin: 2 * time.Second, DelayMax: 3 * time.Second, NavigationAttempts: 3},
			Database:   DatabaseConfig{Host: "localhost", Name: "fuelrx", MaxConns: 2},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no categories", func(c *Config) { c.Categories = nil }, "at least one category"},
		{"unknown tag", func(c *Config) { c.Categories[0].Tag = "toys" }, "unknown category tag"},
		{"duplicate tag", func(c *Config) { c.Categories[1].Tag = c.Categories[0].Tag }, "duplicate category tag"},
		{"bad url", func(c *Config) { c.Categories[0].URL = "meat" }, "invalid url"},
		{"delay inverted", func(c *Config) { c.Scraper.DelayMin = 5 * time.Second }, "SCRAPER_DELAY_MIN"},
		{"no attempts", func(c *Config) { c.Scraper.NavigationAttempts = 0 }, "SCRAPER_NAVIGATION_ATTEMPTS"},
		{"no database", func(c *Config) { c.Database.Host = "" }, "DATABASE_URL"},
		{"database url only", func(c *Config) {
			c.Database.Host = ""
			c.Database.URL = "postgres://localhost/fuelrx"
		}, ""},
		{"no zip", func(c *Config) { c.Store.Zip = "" }, "STORE_ZIP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "scraper", Password: "p@ss", Name: "fuelrx", SSLMode: "require"}
	assert.Equal(t, "postgres://scraper:p%40ss@db:5433/fuelrx?sslmode=require", d.DSN())

	d.URL = "postgres://override/db"
	assert.Equal(t, "postgres://override/db", d.DSN())
}
