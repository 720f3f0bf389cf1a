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

// crcPerUSD is the fixed approximate colon-to-dollar rate used when a
// listing prices in CRC.
var crcPerUSD = decimal.NewFromInt(520)

// sqftToM2 converts square feet to square meters.
var sqftToM2 = decimal.NewFromFloat(0.092903)

// siteConfidence is recorded for selector-based extraction.
const siteConfidence = 0.95

var (
	priceRe    = regexp.MustCompile(`([$₡])\s*([\d][\d.,]*)`)
	usdRe      = regexp.MustCompile(`(?i)(?:US\$|USD)\s*([\d][\d.,]*)`)
	bedroomsRe = regexp.MustCompile(`(?i)(\d+)\s*(?:bed(?:room)?s?|habitaciones?|recámaras?|dormitorios?|hab\b)`)
	bathsRe    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:bath(?:room)?s?|baños?)`)
	areaRe     = regexp.MustCompile(`(?i)([\d][\d.,]*)\s*(m2|m²|sq\.?\s*ft|square feet)`)
	latLngRe   = regexp.MustCompile(`(-?\d+\.\d+)\s*,\s*(-?\d+\.\d+)`)
)

// Base holds the heuristic field extraction every site extractor
// builds on. Every method returns the zero value when the page gives
// nothing; none of them fail.
type Base struct{}

func (b *Base) Site() string { return SiteOther }

func (b *Base) Extract(ctx context.Context, page *fetcher.Result) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return (&models.RawFields{Title: page.Title, Method: models.MethodSiteSpecific, Confidence: siteConfidence}).Fields(), nil
	}

	raw := &models.RawFields{
		Title:       b.Title(doc),
		Description: b.Description(doc),
		Location:    b.Location(doc),
		Amenities:   b.Amenities(doc),
		Images:      b.Images(doc, page.URL),
		Method:      models.MethodSiteSpecific,
		Confidence:  siteConfidence,
	}
	raw.Price, raw.Currency = b.Price(doc)
	raw.Bedrooms = b.Bedrooms(doc)
	raw.Bathrooms = b.Bathrooms(doc)
	raw.AreaM2 = b.Area(doc)
	raw.Latitude, raw.Longitude = b.Coordinates(doc)

	if raw.Title == "" {
		raw.Title = page.Title
	}

	return raw.Fields(), nil
}

func (b *Base) Title(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Price scans likely price nodes first, then the whole page text.
// CRC amounts are converted to USD at the fixed rate.
func (b *Base) Price(doc *goquery.Document) (*decimal.Decimal, string) {
	candidates := []string{}
	doc.Find(`[class*="price"], [id*="price"], [itemprop="price"]`).Each(func(i int, s *goquery.Selection) {
		candidates = append(candidates, s.Text())
	})
	candidates = append(candidates, doc.Text())

	for _, text := range candidates {
		if price, currency := ParsePrice(text); price != nil {
			return price, currency
		}
	}
	return nil, ""
}

// ParsePrice reads the first recognizable money amount out of text.
// Returns the USD value and the original currency code.
func ParsePrice(text string) (*decimal.Decimal, string) {
	if m := usdRe.FindStringSubmatch(text); m != nil {
		if d := parseAmount(m[1]); d != nil {
			return d, "USD"
		}
	}
	if m := priceRe.FindStringSubmatch(text); m != nil {
		d := parseAmount(m[2])
		if d == nil {
			return nil, ""
		}
		if m[1] == "₡" {
			usd := d.Div(crcPerUSD).Round(2)
			return &usd, "CRC"
		}
		return d, "USD"
	}
	return nil, ""
}

func parseAmount(s string) *decimal.Decimal {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, ".")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsZero() {
		return nil
	}
	d = d.Round(2)
	return &d
}

func (b *Base) Bedrooms(doc *goquery.Document) *int {
	if m := bedroomsRe.FindStringSubmatch(doc.Text()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n < 50 {
			return &n
		}
	}
	return nil
}

func (b *Base) Bathrooms(doc *goquery.Document) *decimal.Decimal {
	if m := bathsRe.FindStringSubmatch(doc.Text()); m != nil {
		if d, err := decimal.NewFromString(m[1]); err == nil && d.IsPositive() {
			return &d
		}
	}
	return nil
}

// Area returns construction area in square meters, converting from
// square feet when that's the unit on the page.
func (b *Base) Area(doc *goquery.Document) *decimal.Decimal {
	if m := areaRe.FindStringSubmatch(doc.Text()); m != nil {
		d := parseAmount(m[1])
		if d == nil {
			return nil
		}
		unit := strings.ToLower(strings.ReplaceAll(m[2], " ", ""))
		if strings.HasPrefix(unit, "sq") || unit == "squarefeet" {
			converted := d.Mul(sqftToM2).Round(2)
			return &converted
		}
		return d
	}
	return nil
}

func (b *Base) Description(doc *goquery.Document) string {
	for _, sel := range []string{
		`[class*="description"]`,
		`[id*="description"]`,
		`meta[property="og:description"]`,
	} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(node.Text())
		if text == "" {
			text, _ = node.Attr("content")
			text = strings.TrimSpace(text)
		}
		if len(text) > 40 {
			return text
		}
	}
	return ""
}

func (b *Base) Location(doc *goquery.Document) string {
	for _, sel := range []string{
		`[class*="location"]`,
		`[class*="address"]`,
		`[itemprop="address"]`,
	} {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" && len(text) < 160 {
			return text
		}
	}
	return ""
}

func (b *Base) Coordinates(doc *goquery.Document) (*float64, *float64) {
	var lat, lng *float64
	doc.Find(`iframe[src*="maps"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if m := latLngRe.FindStringSubmatch(src); m != nil {
			la, err1 := strconv.ParseFloat(m[1], 64)
			ln, err2 := strconv.ParseFloat(m[2], 64)
			if err1 == nil && err2 == nil {
				lat, lng = &la, &ln
				return false
			}
		}
		return true
	})
	return lat, lng
}

func (b *Base) Amenities(doc *goquery.Document) []string {
	var out []string
	seen := make(map[string]bool)
	doc.Find(`[class*="amenit"] li, [class*="feature"] li`).Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" && len(text) < 60 && !seen[strings.ToLower(text)] {
			seen[strings.ToLower(text)] = true
			out = append(out, text)
		}
	})
	return out
}

// Images collects gallery image URLs. The first URL is the listing's
// primary image; order is preserved.
func (b *Base) Images(doc *goquery.Document, pageURL string) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(src string) {
		src = strings.TrimSpace(src)
		if src == "" || seen[src] || !strings.HasPrefix(src, "http") {
			return
		}
		low := strings.ToLower(src)
		if strings.Contains(low, "logo") || strings.Contains(low, "icon") || strings.Contains(low, "avatar") {
			return
		}
		seen[src] = true
		out = append(out, src)
	}

	if v, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		add(v)
	}
	doc.Find(`[class*="gallery"] img, [class*="carousel"] img, [class*="slider"] img`).Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("data-src"); ok {
			add(src)
		} else if src, ok := s.Attr("src"); ok {
			add(src)
		}
	})

	return out
}
