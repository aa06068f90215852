package parser

import (
	"fmt"
	"strings"
)

// Selectors is the single place that knows the retailer's DOM. Card selectors are CSS
// (goquery); warehouse selectors use playwright locator syntax.
type Selectors struct {
	Cards      []string
	Name       []string
	Brand      []string
	Price      []string
	UnitPrice  []string
	Image      []string
	Link       []string
	Features   []string
	OutOfStock []string

	WarehouseTrigger string
	ZipInput         string
	ZipSubmit        string
	// WarehouseOption is formatted with the ZIP code.
	WarehouseOption string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Cards: []string{
			".product-tile",
			".product-item",
			".product",
			"[class*='product-']",
			".automation-id-tile",
		},
		Name:       []string{".description", ".product-title", "h3", "a.product-link"},
		Brand:      []string{".brand", "[class*='brand']"},
		Price:      []string{".price", ".product-price", "[class*='price']"},
		UnitPrice:  []string{".unit-price", ".price-per-unit", "[class*='unit-price']"},
		Image:      []string{"img"},
		Link:       []string{"a[href*='product']", "a.product-link", "a[href]"},
		Features:   []string{".product-features li", ".features li"},
		OutOfStock: []string{".out-of-stock", "[class*='out-of-stock']", "[data-out-of-stock='true']"},

		WarehouseTrigger: "text=/Set Your Warehouse|Change Warehouse|Warehouse/i",
		ZipInput:         "input[placeholder*='ZIP' i], input[name*='zip' i], input[id*='zip' i]",
		ZipSubmit:        "button:has-text('Search'), button:has-text('Find'), button[type='submit']",
		WarehouseOption:  "text=/%s/i",
	}
}

// WarehouseOptionFor returns the locator of the search result matching zip.
func (s Selectors) WarehouseOptionFor(zip string) string {
	return fmt.Sprintf(s.WarehouseOption, zip)
}

// CardWaitSelector joins the card selectors for a single wait-for-any call.
func (s Selectors) CardWaitSelector() string {
	return strings.Join(s.Cards, ", ")
}
