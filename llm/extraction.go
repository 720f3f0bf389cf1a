package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
)

// maxExtractionChars bounds the listing text sent to the model.
const maxExtractionChars = 8000

const parseAttempts = 3

// ExtractionError marks a retryable extraction failure: the model
// could not produce usable structured data for the page.
type ExtractionError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

const extractionSystemPrompt = `You are a real estate data extraction assistant. You read listing page text and return structured JSON. Respond with a single JSON object and nothing else. Use null for fields not present in the text. Never invent values.`

const extractionSchema = `{
  "title": "string, the listing headline",
  "price": "number, asking price in USD (convert if the text shows another currency)",
  "currency": "string, original currency code",
  "location": "string, human readable location",
  "address": "string or null",
  "city": "string or null",
  "province": "string or null",
  "bedrooms": "integer or null",
  "bathrooms": "number or null",
  "area_m2": "number or null, construction area in square meters",
  "lot_size_m2": "number or null",
  "property_type": "one of: house, apartment, condo, lot, commercial, farm",
  "listing_type": "one of: for_sale, for_rent, sold",
  "description": "string, the listing description",
  "amenities": "array of strings",
  "parking_spaces": "integer or null",
  "pool": "boolean or null",
  "latitude": "number or null",
  "longitude": "number or null",
  "agent_name": "string or null",
  "agent_phone": "string or null",
  "confidence": "number between 0 and 1, your confidence in this extraction"
}`

// ExtractProperty runs one structured extraction over listing text.
// The text is truncated to a fixed budget; the model answers in JSON
// mode and the response is parsed with repair fallbacks. Fails with
// ExtractionError when no usable title comes back.
func (c *Client) ExtractProperty(ctx context.Context, text, pageURL string) (map[string]any, error) {
	text = Truncate(text, maxExtractionChars)

	prompt := fmt.Sprintf("Extract the property listing data from this page text.\n\nSource URL: %s\n\nExpected JSON shape:\n%s\n\nPage text:\n%s",
		pageURL, extractionSchema, text)

	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		raw, err := c.complete(ctx, extractionSystemPrompt, prompt, true)
		if err != nil {
			lastErr = err
			log.Printf("Warning: extraction attempt %d failed: %v", attempt, err)
			continue
		}

		fields, err := parseExtraction(raw)
		if err != nil {
			lastErr = err
			log.Printf("Warning: extraction attempt %d returned unparseable JSON: %v", attempt, err)
			continue
		}

		title, _ := fields["title"].(string)
		if strings.TrimSpace(title) == "" {
			return nil, &ExtractionError{URL: pageURL, Reason: "no title extracted"}
		}

		fields["extraction_method"] = "llm"
		if _, ok := fields["confidence"].(float64); !ok {
			fields["confidence"] = 0.5
		}
		coerceNumericFields(fields)

		return fields, nil
	}

	return nil, &ExtractionError{URL: pageURL, Reason: "model call failed", Err: lastErr}
}

// ExtractLocation is a targeted single-field fallback used when page
// parsing found no location. Returns "" when the model can't tell.
func (c *Client) ExtractLocation(ctx context.Context, description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}

	prompt := fmt.Sprintf("What is the location of this property? Answer with just the location name (city, region, country), or the single word Unknown.\n\n%s",
		Truncate(description, 2000))

	answer, err := c.complete(ctx, "You answer with a short location string only.", prompt, false)
	if err != nil {
		log.Printf("Warning: location fallback failed: %v", err)
		return ""
	}

	answer = strings.TrimSpace(strings.Trim(answer, `"`))
	if answer == "" || strings.EqualFold(answer, "unknown") || len(answer) > 120 {
		return ""
	}
	return answer
}

func parseExtraction(raw string) (map[string]any, error) {
	cleaned := stripFences(raw)

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err == nil {
		return dropNulls(fields), nil
	}

	repaired := repairJSON(cleaned)
	if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	return dropNulls(fields), nil
}

func dropNulls(fields map[string]any) map[string]any {
	for k, v := range fields {
		if v == nil {
			delete(fields, k)
		}
	}
	return fields
}

// coerceNumericFields converts money and area values from the JSON
// float64 decoding into fixed-precision decimals.
func coerceNumericFields(fields map[string]any) {
	for _, key := range []string{"price", "bathrooms", "area_m2", "lot_size_m2"} {
		switch v := fields[key].(type) {
		case float64:
			fields[key] = decimal.NewFromFloat(v).Round(2)
		case string:
			if d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", "")); err == nil {
				fields[key] = d.Round(2)
			}
		}
	}
	for _, key := range []string{"bedrooms", "parking_spaces"} {
		if v, ok := fields[key].(float64); ok {
			fields[key] = int(v)
		}
	}
}

// Truncate caps s at n characters on a rune boundary.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
