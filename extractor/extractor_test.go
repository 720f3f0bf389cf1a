package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"casaingest/fetcher"
	"casaingest/models"
)

func loadFixture(t *testing.T, name string) *fetcher.Result {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", name, err)
	}
	return fetcher.FromHTML("https://example.com/"+name, string(data))
}

type fakeEnhancer struct {
	fields map[string]any
	err    error
	text   string
}

func (f *fakeEnhancer) ExtractProperty(ctx context.Context, text, pageURL string) (map[string]any, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

func testRegistry(enhancer Enhancer) *Registry {
	base := &Base{}
	entries := []Entry{
		{SiteID: SiteEncuentra24, Hosts: []string{"encuentra24.com"}, Extractor: NewEncuentra24(base, enhancer)},
		{SiteID: SiteColdwell, Hosts: []string{"coldwellbankercostarica.com"}, Extractor: NewColdwellBanker(base, nil)},
		{SiteID: SiteBrevitas, Hosts: []string{"brevitas.com"}},
	}
	return NewRegistry(entries, NewGeneric(SiteOther, enhancer))
}

func TestRegistryDetect(t *testing.T) {
	r := testRegistry(nil)

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.encuentra24.com/costa-rica-es/bienes-raices/apartamento", SiteEncuentra24},
		{"https://encuentra24.com/listing/123", SiteEncuentra24},
		{"https://www.coldwellbankercostarica.com/property/ocean-view", SiteColdwell},
		{"https://brevitas.com/listing/456", SiteBrevitas},
		{"https://some-random-realtor.cr/casa", SiteOther},
		{"not a url", SiteOther},
	}
	for _, tt := range tests {
		if got := r.Detect(tt.url); got != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestRegistryGetIsTotal(t *testing.T) {
	r := testRegistry(&fakeEnhancer{fields: map[string]any{"title": "x"}})

	for _, url := range []string{
		"https://www.encuentra24.com/x",
		"https://brevitas.com/x",
		"https://unknown.example/x",
		"garbage",
	} {
		if r.Get(url) == nil {
			t.Fatalf("Get(%q) returned nil", url)
		}
	}

	// brevitas has no selector extractor and falls through to the LLM path
	if got := r.Get("https://brevitas.com/x").Site(); got != SiteOther {
		t.Errorf("brevitas should use the fallback extractor, got site %q", got)
	}
}

func TestEncuentra24Extract(t *testing.T) {
	page := loadFixture(t, "encuentra24.html")
	ex := NewEncuentra24(&Base{}, nil)

	fields, err := ex.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if got := fields["title"]; got != "A'Mar - Condominio en Jacó" {
		t.Errorf("title = %v", got)
	}
	wantPrice := decimal.NewFromInt(179000).Round(2)
	if got, ok := fields["price"].(decimal.Decimal); !ok || !got.Equal(wantPrice) {
		t.Errorf("price = %v, want %v", fields["price"], wantPrice)
	}
	if got := fields["bedrooms"]; got != 2 {
		t.Errorf("bedrooms = %v", got)
	}
	if got, ok := fields["area_m2"].(decimal.Decimal); !ok || !got.Equal(decimal.NewFromInt(85)) {
		t.Errorf("area_m2 = %v", fields["area_m2"])
	}
	if got, ok := fields["lot_size_m2"].(decimal.Decimal); !ok || !got.Equal(decimal.NewFromInt(200)) {
		t.Errorf("lot_size_m2 = %v", fields["lot_size_m2"])
	}
	if got := fields["listing_type"]; got != "for_sale" {
		t.Errorf("listing_type = %v", got)
	}
	if got := fields["listing_id"]; got != "1031734" {
		t.Errorf("listing_id = %v", got)
	}
	if got := fields["date_listed"]; got != "15/03/2024" {
		t.Errorf("date_listed = %v", got)
	}
	if got := fields["construction_stage"]; got != "En construcción" {
		t.Errorf("construction_stage = %v", got)
	}
	if got := fields["location"]; got != "Jacó" {
		t.Errorf("location = %v", got)
	}
	amenities, _ := fields["amenities"].([]string)
	if len(amenities) != 3 || amenities[0] != "Piscina" {
		t.Errorf("amenities = %v", amenities)
	}
	images, _ := fields["images"].([]string)
	if len(images) != 3 || images[0] != "https://img.encuentra24.com/fotos/amar-01.jpg" {
		t.Errorf("images = %v", images)
	}
	if got := fields["extraction_method"]; got != models.MethodSiteSpecific {
		t.Errorf("extraction_method = %v", got)
	}
	if got := fields["confidence"]; got != siteConfidence {
		t.Errorf("confidence = %v", got)
	}
}

func TestEncuentra24AIEnhancementTakesPrecedence(t *testing.T) {
	page := loadFixture(t, "encuentra24.html")
	enhancer := &fakeEnhancer{fields: map[string]any{
		"title":       "A'Mar - Condominio frente al mar en Jacó",
		"price":       decimal.NewFromInt(185000),
		"bedrooms":    3,
		"description": "Exclusivo condominio de 20 pisos frente a la playa.",
		"model":       "Tipo B",
	}}
	ex := NewEncuentra24(&Base{}, enhancer)

	fields, err := ex.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if got := fields["title"]; got != "A'Mar - Condominio frente al mar en Jacó" {
		t.Errorf("AI title should win, got %v", got)
	}
	if got, ok := fields["price"].(decimal.Decimal); !ok || !got.Equal(decimal.NewFromInt(185000)) {
		t.Errorf("AI price should win, got %v", fields["price"])
	}
	if got := fields["bedrooms"]; got != 3 {
		t.Errorf("AI bedrooms should win, got %v", got)
	}
	if got := fields["description"]; got != "Exclusivo condominio de 20 pisos frente a la playa." {
		t.Errorf("AI description should win, got %v", got)
	}
	if got := fields["model"]; got != "Tipo B" {
		t.Errorf("AI-only fields should pass through, got %v", got)
	}
	// selector fields the AI was silent about survive
	if got := fields["listing_id"]; got != "1031734" {
		t.Errorf("listing_id = %v", got)
	}
	if got := fields["extraction_method"]; got != models.MethodAIEnhanced {
		t.Errorf("extraction_method = %v", got)
	}
	if got := fields["confidence"]; got != siteConfidence {
		t.Errorf("confidence = %v", got)
	}
}

func TestEncuentra24AIFailureKeepsSiteFields(t *testing.T) {
	page := loadFixture(t, "encuentra24.html")
	ex := NewEncuentra24(&Base{}, &fakeEnhancer{err: errors.New("api down")})

	fields, err := ex.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("AI failure must not fail extraction: %v", err)
	}
	if got := fields["title"]; got != "A'Mar - Condominio en Jacó" {
		t.Errorf("title = %v", got)
	}
	if got := fields["extraction_method"]; got != models.MethodSiteSpecific {
		t.Errorf("extraction_method = %v", got)
	}
}

func TestEncuentra24SectionText(t *testing.T) {
	page := loadFixture(t, "encuentra24.html")
	enhancer := &fakeEnhancer{fields: map[string]any{"title": "x"}}
	ex := NewEncuentra24(&Base{}, enhancer)

	if _, err := ex.Extract(context.Background(), page); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	for _, section := range []string{"TÍTULO:", "DETALLES:", "DESCRIPCIÓN:", "AMENIDADES:", "UBICACIÓN:", "ETAPA DE CONSTRUCCIÓN: En construcción"} {
		if !contains(enhancer.text, section) {
			t.Errorf("section text missing %q:\n%s", section, enhancer.text)
		}
	}
	if contains(enhancer.text, "<div") {
		t.Error("section text must not contain markup")
	}
}

func TestColdwellBankerExtract(t *testing.T) {
	page := loadFixture(t, "coldwellbanker.html")
	ex := NewColdwellBanker(&Base{}, nil)

	fields, err := ex.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if got := fields["title"]; got != "Ocean View Home in Dominical" {
		t.Errorf("title = %v", got)
	}
	if got, ok := fields["price"].(decimal.Decimal); !ok || !got.Equal(decimal.NewFromInt(450000)) {
		t.Errorf("price = %v", fields["price"])
	}
	if got := fields["bedrooms"]; got != 3 {
		t.Errorf("bedrooms = %v", got)
	}
	wantBaths := decimal.NewFromFloat(2.5)
	if got, ok := fields["bathrooms"].(decimal.Decimal); !ok || !got.Equal(wantBaths) {
		t.Errorf("bathrooms = %v", fields["bathrooms"])
	}
	// 2,500 sq ft converted to square meters
	wantArea := decimal.NewFromFloat(232.26)
	if got, ok := fields["area_m2"].(decimal.Decimal); !ok || !got.Equal(wantArea) {
		t.Errorf("area_m2 = %v, want %v", fields["area_m2"], wantArea)
	}
	if got := fields["location"]; got != "Dominical, Puntarenas, Costa Rica" {
		t.Errorf("location = %v", got)
	}
	if got := fields["latitude"]; got != 9.249813 {
		t.Errorf("latitude = %v", got)
	}
	if got := fields["longitude"]; got != -83.853911 {
		t.Errorf("longitude = %v", got)
	}
	desc, _ := fields["description"].(string)
	if !contains(desc, "Stunning ocean view home") || contains(desc, "Read less") {
		t.Errorf("description = %q", desc)
	}
}

func TestColdwellBankerLocationFallsBackToLLM(t *testing.T) {
	html := `<html><body>
		<div class="title-wrap"><h1>Jungle Retreat</h1></div>
		<div class="desc-wrap"><div class="desc-content">A remote jungle retreat surrounded by wildlife and waterfalls, minutes from town.</div></div>
	</body></html>`
	page := fetcher.FromHTML("https://www.coldwellbankercostarica.com/x", html)
	ex := NewColdwellBanker(&Base{}, locatorFunc(func(ctx context.Context, desc string) string {
		return "Uvita, Puntarenas"
	}))

	fields, err := ex.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if got := fields["location"]; got != "Uvita, Puntarenas" {
		t.Errorf("location = %v", got)
	}
}

type locatorFunc func(ctx context.Context, description string) string

func (f locatorFunc) ExtractLocation(ctx context.Context, description string) string {
	return f(ctx, description)
}

func TestBaseExtractHeuristics(t *testing.T) {
	page := loadFixture(t, "minimal.html")
	base := &Base{}

	fields, err := base.Extract(context.Background(), page)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if got := fields["title"]; got != "Casa de montaña en Heredia" {
		t.Errorf("title = %v", got)
	}
	// ₡260,000,000 at the fixed rate is $500,000
	if got, ok := fields["price"].(decimal.Decimal); !ok || !got.Equal(decimal.NewFromInt(500000)) {
		t.Errorf("price = %v", fields["price"])
	}
	if got := fields["currency"]; got != "CRC" {
		t.Errorf("currency = %v", got)
	}
	if got := fields["bedrooms"]; got != 4 {
		t.Errorf("bedrooms = %v", got)
	}
	if got, ok := fields["area_m2"].(decimal.Decimal); !ok || !got.Equal(decimal.NewFromInt(220)) {
		t.Errorf("area_m2 = %v", fields["area_m2"])
	}
}

func TestBaseNeverErrorsOnEmptyPage(t *testing.T) {
	base := &Base{}
	fields, err := base.Extract(context.Background(), fetcher.FromHTML("https://x.example/", "<html><body></body></html>"))
	if err != nil {
		t.Fatalf("empty page must not error: %v", err)
	}
	if _, ok := fields["price"]; ok {
		t.Errorf("empty page produced a price: %v", fields["price"])
	}
	if _, ok := fields["bedrooms"]; ok {
		t.Errorf("empty page produced bedrooms: %v", fields["bedrooms"])
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		currency string
	}{
		{"$450,000", "450000", "USD"},
		{"US$ 1,250,000", "1250000", "USD"},
		{"₡260,000,000", "500000", "CRC"},
		{"Precio: $ 99,500 negociable", "99500", "USD"},
		{"no price here", "", ""},
	}
	for _, tt := range tests {
		got, currency := ParsePrice(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("ParsePrice(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		want, _ := decimal.NewFromString(tt.want)
		if got == nil || !got.Equal(want) || currency != tt.currency {
			t.Errorf("ParsePrice(%q) = %v %s, want %v %s", tt.in, got, currency, want, tt.currency)
		}
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
