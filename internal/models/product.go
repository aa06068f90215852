package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryMeatSeafood   Category = "meat_seafood"
	CategoryDeli          Category = "deli"
	CategoryPreparedMeals Category = "prepared_meals"
	CategoryPantry        Category = "pantry"
	CategoryOrganic       Category = "organic"
	CategoryCheeseDairy   Category = "cheese_dairy"
	CategorySnacks        Category = "snacks"
	CategoryMixtPantry    Category = "mixt_pantry"
)

var knownCategories = map[Category]bool{
	CategoryMeatSeafood:   true,
	CategoryDeli:          true,
	CategoryPreparedMeals: true,
	CategoryPantry:        true,
	CategoryOrganic:       true,
	CategoryCheeseDairy:   true,
	CategorySnacks:        true,
	CategoryMixtPantry:    true,
}

func (c Category) IsValid() bool {
	return knownCategories[c]
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// RawCard holds the strings pulled off one product card before normalization.
// Empty string means the element was not present.
type RawCard struct {
	Name          string
	Brand         string
	PriceText     string
	UnitPriceText string
	ImageURL      string
	ProductURL    string
	Features      []string
	OutOfStock    bool
}

// Usable reports whether the card carries enough to identify a product.
func (c RawCard) Usable() bool {
	return c.Name != "" || c.ProductURL != ""
}

type Nutrition struct {
	Calories    *int    `json:"calories,omitempty"`
	Protein     *int    `json:"protein,omitempty"`
	Carbs       *int    `json:"carbs,omitempty"`
	Fat         *int    `json:"fat,omitempty"`
	Sodium      *int    `json:"sodium,omitempty"`
	Fiber       *int    `json:"fiber,omitempty"`
	Sugar       *int    `json:"sugar,omitempty"`
	ServingSize *string `json:"serving_size,omitempty"`
	Ingredients *string `json:"ingredients,omitempty"`
	Allergens   *string `json:"allergens,omitempty"`
}

type Product struct {
	ID                 uuid.UUID       `json:"id"`
	ProductURL         string          `json:"product_url"`
	Name               string          `json:"name"`
	Brand              *string         `json:"brand,omitempty"`
	Category           Category        `json:"category"`
	ImageURL           *string         `json:"image_url,omitempty"`
	Price              *float64        `json:"price,omitempty"`
	UnitPrice          *string         `json:"unit_price,omitempty"`
	PackageSize        *string         `json:"package_size,omitempty"`
	InStock            bool            `json:"in_stock"`
	WarehouseLocation  string          `json:"warehouse_location"`
	WarehouseConfirmed bool            `json:"warehouse_confirmed"`
	Nutrition          Nutrition       `json:"nutrition"`
	RawDetails         json.RawMessage `json:"raw_details,omitempty"`
	RawSpecifications  json.RawMessage `json:"raw_specifications,omitempty"`
	LastScrapedAt      time.Time       `json:"last_scraped_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (p *Product) Validate() []string {
	var errors []string

	if p.ProductURL == "" {
		errors = append(errors, "product_url is required")
	}

	if p.Name == "" {
		errors = append(errors, "name is required")
	}

	if !p.Category.IsValid() {
		errors = append(errors, fmt.Sprintf("invalid category %q", p.Category))
	}

	if p.WarehouseLocation == "" {
		errors = append(errors, "warehouse_location is required")
	}

	return errors
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun is the bookkeeping row written once per batch run.
type ScrapeRun struct {
	ID                 uuid.UUID  `json:"id"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	Status             RunStatus  `json:"status"`
	WarehouseZip       string     `json:"warehouse_zip"`
	WarehouseConfirmed bool       `json:"warehouse_confirmed"`
	CategoriesOK       int        `json:"categories_ok"`
	CategoriesFailed   int        `json:"categories_failed"`
	RecordsWritten     int        `json:"records_written"`
	RecordsFailed      int        `json:"records_failed"`
	RecordsSkipped     int        `json:"records_skipped"`
	Error              string     `json:"error,omitempty"`
}

func StringPtr(s string) *string {
	return &s
}

func FloatPtr(f float64) *float64 {
	return &f
}
