package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/maltedev/costco-scraper/internal/models"
)

type Config struct {
	Store      StoreConfig
	Categories []CategoryConfig
	Scraper    ScraperConfig
	Browser    BrowserConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Metrics    MetricsConfig
	Server     ServerConfig
	Logging    LoggingConfig
}

type StoreConfig struct {
	Name    string
	Zip     string
	Address string
	BaseURL string
}

type CategoryConfig struct {
	Tag models.Category `yaml:"tag"`
	URL string          `yaml:"url"`
}

type ScraperConfig struct {
	DelayMin           time.Duration
	DelayMax           time.Duration
	NavigationAttempts int
	PageTimeout        time.Duration
	CardWaitTimeout    time.Duration
	SettleDelay        time.Duration
	ScrollSteps        int
	ScrollPause        time.Duration
}

type BrowserConfig struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type DatabaseConfig struct {
	URL         string
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Stream        string
	EventsEnabled bool
	RelayInterval time.Duration
}

type MetricsConfig struct {
	PushgatewayURL string
	JobName        string
}

type ServerConfig struct {
	Port            int
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, after merging an optional .env file.
func Load() (*Config, error) {
	// A missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Store: StoreConfig{
			Name:    getEnvOrDefault("STORE_NAME", "Sandy, UT"),
			Zip:     getEnvOrDefault("STORE_ZIP", "84070"),
			Address: getEnvOrDefault("STORE_ADDRESS", "11100 S AUTO MALL DR Sandy, UT 84070-4171"),
			BaseURL: strings.TrimRight(getEnvOrDefault("STORE_BASE_URL", "https://www.costco.com"), "/"),
		},
		Categories: DefaultCategories(),
		Scraper: ScraperConfig{
			DelayMin:           getDurationOrDefault("SCRAPER_DELAY_MIN", 2*time.Second),
			DelayMax:           getDurationOrDefault("SCRAPER_DELAY_MAX", 3*time.Second),
			NavigationAttempts: getIntOrDefault("SCRAPER_NAVIGATION_ATTEMPTS", 3),
			PageTimeout:        getDurationOrDefault("SCRAPER_PAGE_TIMEOUT", 30*time.Second),
			CardWaitTimeout:    getDurationOrDefault("SCRAPER_CARD_WAIT_TIMEOUT", 10*time.Second),
			SettleDelay:        getDurationOrDefault("SCRAPER_SETTLE_DELAY", 3*time.Second),
			ScrollSteps:        getIntOrDefault("SCRAPER_SCROLL_STEPS", 5),
			ScrollPause:        getDurationOrDefault("SCRAPER_SCROLL_PAUSE", time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/Denver"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Database: DatabaseConfig{
			URL:         getEnvOrDefault("DATABASE_URL", ""),
			Host:        getEnvOrDefault("DB_HOST", "localhost"),
			Port:        getIntOrDefault("DB_PORT", 5432),
			User:        getEnvOrDefault("DB_USER", "postgres"),
			Password:    getEnvOrDefault("DB_PASSWORD", ""),
			Name:        getEnvOrDefault("DB_NAME", "fuelrx"),
			SSLMode:     getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns:    int32(getIntOrDefault("DB_MAX_CONNS", 2)),
			AutoMigrate: getBoolOrDefault("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			Stream:        getEnvOrDefault("REDIS_STREAM", "stream:costco_products"),
			EventsEnabled: getBoolOrDefault("EVENTS_ENABLED", false),
			RelayInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 30*time.Second),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnvOrDefault("PUSHGATEWAY_URL", ""),
			JobName:        getEnvOrDefault("METRICS_JOB_NAME", "costco_scraper"),
		},
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8084),
			AllowedOrigins:  getListOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if path := os.Getenv("CATEGORIES_FILE"); path != "" {
		categories, err := LoadCategoriesFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Categories = categories
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultCategories is the fixed, ordered list of sections scraped for the warehouse.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Tag: models.CategoryMeatSeafood, URL: "https://www.costco.com/meat.html"},
		{Tag: models.CategoryDeli, URL: "https://www.costco.com/deli.html"},
		{Tag: models.CategoryPreparedMeals, URL: "https://www.costco.com/prepared-food.html"},
		{Tag: models.CategoryPantry, URL: "https://www.costco.com/pantry.html"},
		{Tag: models.CategoryOrganic, URL: "https://www.costco.com/organic-groceries.html"},
		{Tag: models.CategoryCheeseDairy, URL: "https://www.costco.com/dairy-eggs-cheese.html"},
		{Tag: models.CategorySnacks, URL: "https://www.costco.com/snacks.html"},
		{Tag: models.CategoryMixtPantry, URL: "https://costconext.com/brand/mixt-pantry/"},
	}
}

type categoriesFile struct {
	Categories []CategoryConfig `yaml:"categories"`
}

// LoadCategoriesFile replaces the built-in category list with the one in a YAML file:
//
//	categories:
//	  - tag: meat_seafood
//	    url: https://www.costco.com/meat.html
func LoadCategoriesFile(path string) ([]CategoryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}

	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse categories file: %w", err)
	}

	return f.Categories, nil
}

func (c *Config) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}

	seen := make(map[models.Category]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if !cat.Tag.IsValid() {
			return fmt.Errorf("unknown category tag %q", cat.Tag)
		}
		if seen[cat.Tag] {
			return fmt.Errorf("duplicate category tag %q", cat.Tag)
		}
		seen[cat.Tag] = true

		if _, err := url.ParseRequestURI(cat.URL); err != nil {
			return fmt.Errorf("invalid url for category %q: %w", cat.Tag, err)
		}
	}

	if c.Store.Name == "" || c.Store.Zip == "" {
		return fmt.Errorf("STORE_NAME and STORE_ZIP are required")
	}

	if c.Scraper.DelayMin > c.Scraper.DelayMax {
		return fmt.Errorf("SCRAPER_DELAY_MIN cannot be greater than SCRAPER_DELAY_MAX")
	}

	if c.Scraper.NavigationAttempts < 1 {
		return fmt.Errorf("SCRAPER_NAVIGATION_ATTEMPTS must be at least 1")
	}

	if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Name == "") {
		return fmt.Errorf("DATABASE_URL or DB_HOST and DB_NAME are required")
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}

	return nil
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the DB_* settings.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
