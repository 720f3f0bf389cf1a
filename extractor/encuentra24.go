package extractor

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"casaingest/fetcher"
	"casaingest/models"
)

// Enhancer runs a full structured LLM pass over clean listing text.
// Satisfied by *llm.Client.
type Enhancer interface {
	ExtractProperty(ctx context.Context, text, pageURL string) (map[string]any, error)
}

// Encuentra24 handles encuentra24.com listings. Extraction is hybrid:
// selector-based fields first, then an LLM pass over the page's clean
// text sections whose output takes precedence field by field.
type Encuentra24 struct {
	base     *Base
	enhancer Enhancer
}

func NewEncuentra24(base *Base, enhancer Enhancer) *Encuentra24 {
	return &Encuentra24{base: base, enhancer: enhancer}
}

func (e *Encuentra24) Site() string { return SiteEncuentra24 }

var (
	e24USDRe        = regexp.MustCompile(`\$\s*([\d,]+)`)
	e24CRCRe        = regexp.MustCompile(`₡\s*([\d,]+)`)
	e24BedsRe       = regexp.MustCompile(`(?i)(\d+)\s*(?:recamara|recámara|habitacion|habitación|bedroom|dormitorio)`)
	e24BathsRe      = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(?:baño|baños|bathroom)`)
	e24LotRe        = regexp.MustCompile(`(?i)M²?\s*totales\s*([\d,]+)`)
	e24RefRe        = regexp.MustCompile(`(?i)Ref\.?:\s*(\d+)`)
	e24IDParensRe   = regexp.MustCompile(`\((\d{8})\)`)
	e24PublishedRe  = regexp.MustCompile(`(?i)Publicado\s*(\d{2}/\d{2}/\d{4})`)
	e24BreadcrumbRe = regexp.MustCompile(`(?:Alquiler|Venta)\s+de\s+[^>]+>\s*([^>]+)`)
	e24TitleLocRe   = regexp.MustCompile(`\ben\s+([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)*)`)
	e24RentRe       = regexp.MustCompile(`(?i)\bAlquiler\b`)
	e24SaleRe       = regexp.MustCompile(`(?i)\bVenta\b`)
)

func (e *Encuentra24) Extract(ctx context.Context, page *fetcher.Result) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return e.base.Extract(ctx, page)
	}

	raw := &models.RawFields{
		Title:             e.title(doc),
		Description:       e.description(doc),
		Location:          e.location(doc),
		ListingType:       e.listingType(doc),
		Amenities:         e.amenities(doc),
		Images:            e.base.Images(doc, page.URL),
		ListingID:         e.listingID(doc),
		DateListed:        e.dateListed(doc),
		ConstructionStage: e.constructionStage(doc),
		Method:            models.MethodSiteSpecific,
		Confidence:        siteConfidence,
	}
	raw.Price, raw.Currency = e.price(doc)
	raw.Bedrooms = e.bedrooms(doc)
	raw.Bathrooms = e.bathrooms(doc)
	raw.AreaM2 = e.area(doc)
	raw.LotSizeM2 = e.lotSize(doc)

	fields := raw.Fields()

	if e.enhancer != nil {
		text := e.SectionText(doc)
		if raw.ConstructionStage != "" {
			text += "\n\nETAPA DE CONSTRUCCIÓN: " + raw.ConstructionStage
		}
		ai, err := e.enhancer.ExtractProperty(ctx, text, page.URL)
		if err != nil {
			log.Printf("Warning: AI enhancement failed for %s: %v", page.URL, err)
		} else {
			mergeAI(fields, ai)
			fields["extraction_method"] = models.MethodAIEnhanced
			fields["confidence"] = siteConfidence
		}
	}

	return fields, nil
}

// mergeAI overlays LLM output on selector output. A present AI value
// always wins; selector values survive only where the AI was silent.
func mergeAI(fields, ai map[string]any) {
	for k, v := range ai {
		switch k {
		case "extraction_method", "confidence", "field_confidence":
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
		case []any:
			if len(t) == 0 {
				continue
			}
		}
		fields[k] = v
	}
}

// SectionText assembles the labeled clean-text dump sent to the LLM:
// title, detail pairs, description, amenities and location, without
// any markup.
func (e *Encuentra24) SectionText(doc *goquery.Document) string {
	var sections []string

	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		sections = append(sections, "TÍTULO: "+title)
	}

	var details []string
	doc.Find("div.d3-property-details__content div.d3-property-details__detail-label").Each(func(i int, s *goquery.Selection) {
		label := strings.TrimSpace(ownText(s))
		value := strings.TrimSpace(s.Find("p.d3-property-details__detail").Text())
		if label != "" && value != "" {
			details = append(details, label+" "+value)
		}
	})
	if len(details) > 0 {
		sections = append(sections, "DETALLES:\n"+strings.Join(details, "\n"))
	}

	if desc := strings.TrimSpace(doc.Find("div.d3-property-about__text").Text()); desc != "" {
		sections = append(sections, "DESCRIPCIÓN:\n"+desc)
	}

	var amenities []string
	doc.Find("div.d3-property-features li").Each(func(i int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			amenities = append(amenities, "- "+t)
		}
	})
	if len(amenities) > 0 {
		sections = append(sections, "AMENIDADES:\n"+strings.Join(amenities, "\n"))
	}

	if loc := strings.TrimSpace(doc.Find("div.d3-property-location").Text()); loc != "" {
		sections = append(sections, "UBICACIÓN:\n"+loc)
	}

	return strings.Join(sections, "\n\n")
}

// ownText returns a selection's text minus its element children's
// text, approximating the label part of a label-detail pair.
func ownText(s *goquery.Selection) string {
	full := s.Text()
	s.Children().Each(func(i int, c *goquery.Selection) {
		full = strings.Replace(full, c.Text(), "", 1)
	})
	return full
}

func (e *Encuentra24) constructionStage(doc *goquery.Document) string {
	active := doc.Find("div.d3-new-property-stage__time-line div.d3-new-property-stage__time-line-item--active")
	if active.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(active.Last().Find("p.d3-new-property-stage__time-line-label").Text())
}

func (e *Encuentra24) title(doc *goquery.Document) string {
	for _, sel := range []string{".d3-property-details__title", "h1.property-detail", "h1.property-info"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return e.base.Title(doc)
}

func (e *Encuentra24) price(doc *goquery.Document) (*decimal.Decimal, string) {
	var price *decimal.Decimal
	currency := ""
	doc.Find(".d3-property-insight__attribute-details").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := s.Text()
		if m := e24USDRe.FindStringSubmatch(text); m != nil {
			price = parseAmount(m[1])
			currency = "USD"
			return price == nil
		}
		if m := e24CRCRe.FindStringSubmatch(text); m != nil {
			if d := parseAmount(m[1]); d != nil {
				usd := d.Div(crcPerUSD).Round(2)
				price = &usd
				currency = "CRC"
				return false
			}
		}
		return true
	})
	if price != nil {
		return price, currency
	}

	for _, sel := range []string{".property-detail", ".property-info", ".listing-detail"} {
		text := doc.Find(sel).First().Text()
		if m := e24USDRe.FindStringSubmatch(text); m != nil {
			if d := parseAmount(m[1]); d != nil {
				return d, "USD"
			}
		}
	}
	return e.base.Price(doc)
}

func (e *Encuentra24) bedrooms(doc *goquery.Document) *int {
	sections := []string{insightsText(doc)}
	for _, sel := range []string{".property-detail", ".property-info", ".listing-detail"} {
		sections = append(sections, doc.Find(sel).First().Text())
	}
	for _, text := range sections {
		if m := e24BedsRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return &n
			}
		}
	}
	return nil
}

func (e *Encuentra24) bathrooms(doc *goquery.Document) *decimal.Decimal {
	sections := []string{insightsText(doc)}
	for _, sel := range []string{".property-detail", ".property-info", ".listing-detail"} {
		sections = append(sections, doc.Find(sel).First().Text())
	}
	for _, text := range sections {
		if m := e24BathsRe.FindStringSubmatch(text); m != nil {
			if d, err := decimal.NewFromString(m[1]); err == nil && d.IsPositive() {
				return &d
			}
		}
	}
	return nil
}

func (e *Encuentra24) area(doc *goquery.Document) *decimal.Decimal {
	var area *decimal.Decimal
	doc.Find("div.d3-property-details__detail-label").EachWithBreak(func(i int, s *goquery.Selection) bool {
		label := ownText(s)
		if !strings.Contains(label, "M²") || strings.Contains(label, "Precio") || strings.Contains(label, "totales") {
			return true
		}
		value := strings.TrimSpace(s.Find("p.d3-property-details__detail").Text())
		area = parseAmount(strings.ReplaceAll(value, "'", ""))
		return area == nil
	})
	if area != nil {
		return area
	}
	return e.base.Area(doc)
}

func (e *Encuentra24) lotSize(doc *goquery.Document) *decimal.Decimal {
	var lot *decimal.Decimal
	doc.Find("div.d3-property-details__detail-label").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if m := e24LotRe.FindStringSubmatch(s.Text()); m != nil {
			lot = parseAmount(m[1])
			return lot == nil
		}
		return true
	})
	return lot
}

func (e *Encuentra24) description(doc *goquery.Document) string {
	if desc := doc.Find("div.d3-property-about__text").First(); desc.Length() > 0 {
		desc.Find("br").Each(func(i int, s *goquery.Selection) {
			s.ReplaceWithHtml("\n")
		})
		if t := strings.TrimSpace(desc.Text()); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(doc.Find(".description").First().Text()); t != "" {
		return t
	}
	return e.base.Description(doc)
}

func (e *Encuentra24) location(doc *goquery.Document) string {
	crumb := doc.Find(".adaptor-breadcrumb-detailpager").Text()
	if m := e24BreadcrumbRe.FindStringSubmatch(crumb); m != nil {
		if loc := strings.TrimSpace(m[1]); loc != "" {
			return loc
		}
	}
	if m := e24TitleLocRe.FindStringSubmatch(e.title(doc)); m != nil {
		return fmt.Sprintf("%s, Costa Rica", m[1])
	}
	return e.base.Location(doc)
}

func (e *Encuentra24) listingType(doc *goquery.Document) string {
	text := insightsText(doc) + " " + doc.Find(".adaptor-breadcrumb-detailpager").Text()
	if e24RentRe.MatchString(text) {
		return "for_rent"
	}
	if e24SaleRe.MatchString(text) {
		return "for_sale"
	}
	return ""
}

func (e *Encuentra24) amenities(doc *goquery.Document) []string {
	var out []string
	doc.Find("div.d3-property-features li").Each(func(i int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	if len(out) > 0 {
		return out
	}
	return e.base.Amenities(doc)
}

func (e *Encuentra24) listingID(doc *goquery.Document) string {
	if code := doc.Find("span.d3-property-details__code").First().Text(); code != "" {
		if m := e24RefRe.FindStringSubmatch(code); m != nil {
			return m[1]
		}
	}
	text := doc.Text()
	if m := e24RefRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := e24IDParensRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func (e *Encuentra24) dateListed(doc *goquery.Document) string {
	var date string
	doc.Find("div.d3-property-details__detail-label").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if m := e24PublishedRe.FindStringSubmatch(s.Text()); m != nil {
			date = m[1]
			return false
		}
		return true
	})
	return date
}

func insightsText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find(".d3-property-insight__attribute-details").Each(func(i int, s *goquery.Selection) {
		b.WriteString(s.Text())
		b.WriteString(" ")
	})
	return b.String()
}
