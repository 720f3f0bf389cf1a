package extractor

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"casaingest/fetcher"
	"casaingest/models"
)

// Locator answers a last-resort location question from a property
// description. Satisfied by *llm.Client.
type Locator interface {
	ExtractLocation(ctx context.Context, description string) string
}

// ColdwellBanker handles coldwellbankercostarica.com listings.
type ColdwellBanker struct {
	base    *Base
	locator Locator
}

func NewColdwellBanker(base *Base, locator Locator) *ColdwellBanker {
	return &ColdwellBanker{base: base, locator: locator}
}

func (c *ColdwellBanker) Site() string { return SiteColdwell }

var (
	cbPriceRe = regexp.MustCompile(`\$\s*([\d,]+)`)
	cbBedsRe  = regexp.MustCompile(`(?i)(\d+)\s*(?:bed|habitacion|dormitorio)`)
	cbBathsRe = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(?:bath|baño)`)
	cbAreaRe  = regexp.MustCompile(`(?i)([\d,]+\.?\d*)\s*(sq\s*ft|sqft|m[²2])`)
	cbMapQRe  = regexp.MustCompile(`[?&]q=(-?[\d.]+),(-?[\d.]+)`)
)

func (c *ColdwellBanker) Extract(ctx context.Context, page *fetcher.Result) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return c.base.Extract(ctx, page)
	}

	raw := &models.RawFields{
		Title:       c.title(doc),
		Description: c.description(doc),
		Amenities:   c.amenities(doc),
		Images:      c.base.Images(doc, page.URL),
		Method:      models.MethodSiteSpecific,
		Confidence:  siteConfidence,
	}
	raw.Price, raw.Currency = c.price(doc)
	raw.Bedrooms = c.bedrooms(doc)
	raw.Bathrooms = c.bathrooms(doc)
	raw.AreaM2 = c.area(doc)
	raw.Latitude, raw.Longitude = c.coordinates(doc)
	raw.Location = c.location(ctx, doc, raw)

	return raw.Fields(), nil
}

func (c *ColdwellBanker) title(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("div.title-wrap h1").First().Text()); t != "" {
		return t
	}
	return c.base.Title(doc)
}

func (c *ColdwellBanker) price(doc *goquery.Document) (*decimal.Decimal, string) {
	if m := cbPriceRe.FindStringSubmatch(doc.Find("div.title-wrap").Text()); m != nil {
		if d := parseAmount(m[1]); d != nil {
			return d, "USD"
		}
	}
	return c.base.Price(doc)
}

func (c *ColdwellBanker) bedrooms(doc *goquery.Document) *int {
	for _, sel := range []string{"ul.ul-specs", "div.more-details"} {
		if m := cbBedsRe.FindStringSubmatch(doc.Find(sel).Text()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return &n
			}
		}
	}
	return nil
}

func (c *ColdwellBanker) bathrooms(doc *goquery.Document) *decimal.Decimal {
	for _, sel := range []string{"ul.ul-specs", "div.more-details"} {
		if m := cbBathsRe.FindStringSubmatch(doc.Find(sel).Text()); m != nil {
			if d, err := decimal.NewFromString(m[1]); err == nil && d.IsPositive() {
				return &d
			}
		}
	}
	return nil
}

// area reads the specs list; imperial listings are converted to
// square meters.
func (c *ColdwellBanker) area(doc *goquery.Document) *decimal.Decimal {
	if m := cbAreaRe.FindStringSubmatch(doc.Find("ul.ul-specs").Text()); m != nil {
		d := parseAmount(m[1])
		if d == nil {
			return nil
		}
		unit := strings.ToLower(strings.ReplaceAll(m[2], " ", ""))
		if strings.HasPrefix(unit, "sq") {
			converted := d.Mul(sqftToM2).Round(2)
			return &converted
		}
		return d
	}
	return c.base.Area(doc)
}

func (c *ColdwellBanker) description(doc *goquery.Document) string {
	wrap := doc.Find("div.desc-wrap").First()
	if wrap.Length() > 0 {
		for _, sel := range []string{"div.desc-content-complete", "div.desc-content-partial", "div.desc-content"} {
			node := wrap.Find(sel).First()
			if node.Length() == 0 {
				continue
			}
			node.Find("a.read-toggle").Remove()
			if t := strings.TrimSpace(node.Text()); t != "" {
				return t
			}
		}
	}
	if t := strings.TrimSpace(doc.Find("div.property-description").First().Text()); t != "" {
		return t
	}
	if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (c *ColdwellBanker) amenities(doc *goquery.Document) []string {
	var out []string
	doc.Find("div.property-features li").Each(func(i int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	if len(out) > 0 {
		return out
	}
	return c.base.Amenities(doc)
}

func (c *ColdwellBanker) coordinates(doc *goquery.Document) (*float64, *float64) {
	var lat, lng *float64
	doc.Find(`iframe[src*="google.com/maps"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if m := cbMapQRe.FindStringSubmatch(src); m != nil {
			la, err1 := strconv.ParseFloat(m[1], 64)
			ln, err2 := strconv.ParseFloat(m[2], 64)
			if err1 == nil && err2 == nil {
				lat, lng = &la, &ln
				return false
			}
		}
		return true
	})
	if lat != nil {
		return lat, lng
	}
	return c.base.Coordinates(doc)
}

// location tries the address block, then page headings, and as a last
// resort asks the LLM to read it out of the description.
func (c *ColdwellBanker) location(ctx context.Context, doc *goquery.Document, raw *models.RawFields) string {
	wrap := doc.Find("div.location-wrap").First()
	if wrap.Length() > 0 {
		if t := strings.TrimSpace(wrap.Find("address").First().Text()); t != "" {
			return t
		}
		if t := strings.TrimSpace(wrap.Find("p").First().Text()); t != "" {
			return t
		}
	}

	if t := c.base.Location(doc); t != "" {
		return t
	}

	if c.locator != nil && raw.Description != "" {
		if t := c.locator.ExtractLocation(ctx, raw.Description); t != "" {
			return t
		}
	}
	return ""
}
