package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"casaingest/llm"
	"casaingest/models"
	"casaingest/normalize"
)

// DuplicateError reports that a property with the same source URL
// already exists for the tenant.
type DuplicateError struct {
	PropertyID   string
	PropertyName string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("property already exists (ID: %s)", e.PropertyID)
}

// Save normalizes a previewed field bag, rejects duplicates by source
// URL and writes the property. Embedding generation happens in the
// background; a missed embedding is picked up later by the backfill
// worker.
func (p *Pipeline) Save(ctx context.Context, data map[string]any) (*models.Property, error) {
	canonical := normalize.Normalize(data)

	tenantID := stringField(canonical, "tenant_id")
	if tenantID == "" {
		tenantID = p.TenantID
	}

	sourceURL := stringField(canonical, "source_url")
	if sourceURL != "" {
		existing, err := p.Store.GetPropertyBySourceURL(ctx, tenantID, sourceURL)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		if existing != nil {
			return nil, &DuplicateError{PropertyID: existing.ID, PropertyName: existing.Name}
		}
	}

	prop := buildProperty(canonical)
	prop.ID = uuid.New().String()
	prop.TenantID = tenantID
	prop.SourceURL = sourceURL
	now := time.Now().UTC()
	prop.CreatedAt = now
	prop.UpdatedAt = now

	for _, url := range stringSlice(canonical["images"]) {
		prop.Images = append(prop.Images, models.PropertyImage{
			ID:        uuid.New().String(),
			URL:       url,
			CreatedAt: now,
		})
	}

	if err := p.Store.CreateProperty(ctx, prop); err != nil {
		return nil, fmt.Errorf("create property: %w", err)
	}

	p.embedInBackground(prop)
	return prop, nil
}

// embedInBackground schedules embedding generation on the worker pool,
// falling back to a plain goroutine when no pool is configured. Save
// never waits on it.
func (p *Pipeline) embedInBackground(prop *models.Property) {
	if p.Embedder == nil {
		return
	}

	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		content := llm.SearchContent(prop)
		embedding, err := p.Embedder.EmbedText(ctx, content)
		if err != nil {
			log.Printf("Warning: embedding for %s failed: %v", prop.ID, err)
			return
		}
		if err := p.Store.UpdateEmbedding(ctx, prop.ID, embedding, content); err != nil {
			log.Printf("Warning: store embedding for %s: %v", prop.ID, err)
		}
	}

	if p.Pool != nil {
		if err := p.Pool.Submit(task); err != nil {
			log.Printf("Warning: submit embedding task: %v", err)
			go task()
		}
		return
	}
	go task()
}

// buildProperty maps the canonical bag onto the model. Values arrive
// either Go-native from the extractors or JSON-decoded from the save
// endpoint, so every coercion accepts both shapes.
func buildProperty(data map[string]any) *models.Property {
	lotSize := data["lot_size_m2"]
	if lotSize == nil {
		lotSize = data["lot_size"]
	}

	prop := &models.Property{
		Name:          stringField(data, "property_name"),
		Description:   stringField(data, "description"),
		Location:      stringField(data, "location"),
		Latitude:      floatValue(data["latitude"]),
		Longitude:     floatValue(data["longitude"]),
		Price:         decimalValue(data["price"]),
		PropertyType:  stringField(data, "property_type"),
		Status:        models.PropertyStatus(stringField(data, "status")),
		Bedrooms:      intValue(data["bedrooms"]),
		Bathrooms:     decimalValue(data["bathrooms"]),
		SquareMeters:  decimalValue(data["square_meters"]),
		LotSize:       decimalValue(lotSize),
		ParkingSpaces: intValue(data["parking_spaces"]),
		Pool:          boolValue(data["pool"]),
		Amenities:     stringSlice(data["amenities"]),
		SourceWebsite: stringField(data, "source_website"),
		ListingID:     stringField(data, "listing_id"),
		DateListed:    timeValue(data["date_listed"]),
	}
	return prop
}

func stringField(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func decimalValue(v any) *decimal.Decimal {
	switch d := v.(type) {
	case decimal.Decimal:
		return &d
	case *decimal.Decimal:
		return d
	case float64:
		dec := decimal.NewFromFloat(d)
		return &dec
	case int:
		dec := decimal.NewFromInt(int64(d))
		return &dec
	case json.Number:
		dec, err := decimal.NewFromString(d.String())
		if err != nil {
			return nil
		}
		return &dec
	case string:
		dec, err := decimal.NewFromString(d)
		if err != nil {
			return nil
		}
		return &dec
	}
	return nil
}

func intValue(v any) *int {
	switch n := v.(type) {
	case int:
		return &n
	case int64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		i := int(f)
		return &i
	}
	return nil
}

func floatValue(v any) *float64 {
	switch f := v.(type) {
	case float64:
		return &f
	case int:
		n := float64(f)
		return &n
	case decimal.Decimal:
		n, _ := f.Float64()
		return &n
	case json.Number:
		n, err := f.Float64()
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func boolValue(v any) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

func stringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func timeValue(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return &parsed
			}
		}
	}
	return nil
}
