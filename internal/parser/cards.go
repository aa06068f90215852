package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/costco-scraper/internal/models"
)

// CardExtractor turns a rendered listing page into raw card fields.
type CardExtractor interface {
	ExtractCards(html string) (*CardResult, error)
}

type CardResult struct {
	// Selector is the card selector that matched, empty when none did.
	Selector  string
	Found     int
	Discarded int
	Cards     []models.RawCard
}

type CardParser struct {
	selectors Selectors
	baseURL   *url.URL
}

func NewCardParser(baseURL string, selectors Selectors) (*CardParser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}

	return &CardParser{
		selectors: selectors,
		baseURL:   u,
	}, nil
}

func (p *CardParser) ExtractCards(html string) (*CardResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &CardResult{}

	var cards *goquery.Selection
	for _, selector := range p.selectors.Cards {
		found := doc.Find(selector)
		if found.Length() > 0 {
			cards = found
			result.Selector = selector
			break
		}
	}

	if cards == nil {
		return result, nil
	}

	result.Found = cards.Length()
	cards.Each(func(_ int, card *goquery.Selection) {
		raw := p.parseCard(card)
		if !raw.Usable() {
			result.Discarded++
			return
		}
		result.Cards = append(result.Cards, raw)
	})

	return result, nil
}

func (p *CardParser) parseCard(card *goquery.Selection) models.RawCard {
	raw := models.RawCard{
		Name:          firstText(card, p.selectors.Name),
		Brand:         firstText(card, p.selectors.Brand),
		UnitPriceText: firstText(card, p.selectors.UnitPrice),
		ImageURL:      p.resolve(p.imageSource(card)),
		ProductURL:    p.resolve(p.link(card)),
		OutOfStock:    p.outOfStock(card),
	}

	raw.PriceText = p.price(card, raw.UnitPriceText)

	for _, selector := range p.selectors.Features {
		card.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := cleanText(s.Text()); text != "" {
				raw.Features = append(raw.Features, text)
			}
		})
		if len(raw.Features) > 0 {
			break
		}
	}

	return raw
}

// price skips elements that only carry the unit price, since the broad
// [class*='price'] fallback also matches them.
func (p *CardParser) price(card *goquery.Selection, unitPrice string) string {
	for _, selector := range p.selectors.Price {
		var text string
		card.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := cleanText(s.Text())
			if t == "" || (unitPrice != "" && t == unitPrice) {
				return true
			}
			text = t
			return false
		})
		if text != "" {
			return text
		}
	}
	return ""
}

func (p *CardParser) imageSource(card *goquery.Selection) string {
	for _, selector := range p.selectors.Image {
		img := card.Find(selector).First()
		if img.Length() == 0 {
			continue
		}

		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			src = strings.TrimSpace(img.AttrOr("data-src", ""))
		}
		if src != "" {
			return src
		}
	}
	return ""
}

func (p *CardParser) link(card *goquery.Selection) string {
	// The card itself may be the anchor.
	if goquery.NodeName(card) == "a" {
		if href := strings.TrimSpace(card.AttrOr("href", "")); href != "" {
			return href
		}
	}

	for _, selector := range p.selectors.Link {
		if href := strings.TrimSpace(card.Find(selector).First().AttrOr("href", "")); href != "" {
			return href
		}
	}
	return ""
}

func (p *CardParser) outOfStock(card *goquery.Selection) bool {
	for _, selector := range p.selectors.OutOfStock {
		if card.Find(selector).Length() > 0 {
			return true
		}
	}
	return strings.Contains(strings.ToLower(card.Text()), "out of stock")
}

// resolve makes href absolute against the site base, dropping fragments.
func (p *CardParser) resolve(href string) string {
	if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	abs := p.baseURL.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String()
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if text := cleanText(card.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
