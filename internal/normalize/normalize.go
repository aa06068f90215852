// Package normalize converts raw card strings into typed product records. Nothing here
// performs I/O; the same input always yields the same record.
package normalize

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/costco-scraper/internal/models"
)

var (
	ErrMissingName = errors.New("card has no product name")
	ErrMissingURL  = errors.New("card has no product url")
)

var (
	currencyPattern    = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)`)
	bareAmountPattern  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*$`)
	perUnitPattern     = regexp.MustCompile(`(?i)(/\s*[a-z]+|\bper\s+[a-z]+)`)
	packageSizePattern = regexp.MustCompile(`(?i),\s*(\d+(?:\.\d+)?(?:\s*(?:x|-)\s*\d+(?:\.\d+)?)?\s*(?:lbs?|oz|fl\.?\s?oz|ct|count|pk|pack|g|kg|ml|l|qt|gal)\b[^,]*)$`)
)

// Options carries the per-run values stamped onto every record.
type Options struct {
	WarehouseLocation  string
	WarehouseConfirmed bool
	ScrapedAt          time.Time
}

// Card builds a product record from a raw card scraped under category.
func Card(raw models.RawCard, category models.Category, opts Options) (*models.Product, error) {
	name := cleanText(raw.Name)
	if name == "" {
		return nil, ErrMissingName
	}

	productURL := strings.TrimSpace(raw.ProductURL)
	if productURL == "" {
		return nil, ErrMissingURL
	}

	p := &models.Product{
		ProductURL:         productURL,
		Name:               name,
		Brand:              OptionalString(raw.Brand),
		Category:           category,
		ImageURL:           OptionalString(raw.ImageURL),
		Price:              ParsePrice(raw.PriceText),
		UnitPrice:          UnitPrice(raw.PriceText, raw.UnitPriceText),
		PackageSize:        PackageSize(name),
		InStock:            !raw.OutOfStock,
		WarehouseLocation:  opts.WarehouseLocation,
		WarehouseConfirmed: opts.WarehouseConfirmed,
		LastScrapedAt:      opts.ScrapedAt.UTC(),
	}

	if len(raw.Features) > 0 {
		details, err := json.Marshal(map[string][]string{"features": raw.Features})
		if err == nil {
			p.RawDetails = details
		}
	}

	return p, nil
}

// ParsePrice extracts a dollar amount from price text. Text without an amount
// ("Call for price", "$- -.- -") yields nil.
func ParsePrice(text string) *float64 {
	text = strings.ReplaceAll(text, ",", "")

	match := currencyPattern.FindStringSubmatch(text)
	if match == nil {
		match = bareAmountPattern.FindStringSubmatch(text)
	}
	if match == nil {
		return nil
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}

	value = math.Round(value*100) / 100
	return &value
}

// UnitPrice prefers the card's dedicated unit price element and falls back to the
// price text when that already carries a per-unit suffix such as "/lb".
func UnitPrice(priceText, unitText string) *string {
	if unit := cleanText(unitText); unit != "" {
		return &unit
	}

	price := cleanText(priceText)
	if price != "" && perUnitPattern.MatchString(price) {
		return &price
	}

	return nil
}

// PackageSize reads the trailing ", 6.5 lbs" style quantity from a product name.
func PackageSize(name string) *string {
	match := packageSizePattern.FindStringSubmatch(cleanText(name))
	if match == nil {
		return nil
	}
	return OptionalString(match[1])
}

// OptionalString trims s and maps the empty string to nil.
func OptionalString(s string) *string {
	s = cleanText(s)
	if s == "" {
		return nil
	}
	return &s
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
