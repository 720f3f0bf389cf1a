package models

import "github.com/shopspring/decimal"

// Extraction method identifiers recorded alongside extracted fields.
const (
	MethodSiteSpecific = "site_specific"
	MethodAIEnhanced   = "site_specific_ai_enhanced"
	MethodLLM          = "llm"
)

// RawFields is the typed output of a site extractor. Every slot is
// optional: extractors leave a slot nil when the page doesn't carry it.
type RawFields struct {
	Title             string
	Price             *decimal.Decimal
	Currency          string
	Bedrooms          *int
	Bathrooms         *decimal.Decimal
	AreaM2            *decimal.Decimal
	LotSizeM2         *decimal.Decimal
	PropertyType      string
	ListingType       string
	Description       string
	Location          string
	Address           string
	City              string
	Province          string
	Latitude          *float64
	Longitude         *float64
	Amenities         []string
	Images            []string
	ParkingSpaces     *int
	Pool              *bool
	ListingID         string
	DateListed        string
	ConstructionStage string

	Method          string
	Confidence      float64
	FieldConfidence map[string]float64

	// Extra carries fields an extractor produced that have no typed
	// slot. They pass through normalization untouched.
	Extra map[string]any
}

// Fields flattens the typed slots into the wire bag consumed by the
// normalizer and returned in previews. Nil slots are omitted.
func (r *RawFields) Fields() map[string]any {
	out := make(map[string]any)
	for k, v := range r.Extra {
		out[k] = v
	}

	putStr := func(key, val string) {
		if val != "" {
			out[key] = val
		}
	}
	putDec := func(key string, val *decimal.Decimal) {
		if val != nil {
			out[key] = *val
		}
	}

	putStr("title", r.Title)
	putDec("price", r.Price)
	putStr("currency", r.Currency)
	if r.Bedrooms != nil {
		out["bedrooms"] = *r.Bedrooms
	}
	putDec("bathrooms", r.Bathrooms)
	putDec("area_m2", r.AreaM2)
	putDec("lot_size_m2", r.LotSizeM2)
	putStr("property_type", r.PropertyType)
	putStr("listing_type", r.ListingType)
	putStr("description", r.Description)
	putStr("location", r.Location)
	putStr("address", r.Address)
	putStr("city", r.City)
	putStr("province", r.Province)
	if r.Latitude != nil {
		out["latitude"] = *r.Latitude
	}
	if r.Longitude != nil {
		out["longitude"] = *r.Longitude
	}
	if len(r.Amenities) > 0 {
		out["amenities"] = r.Amenities
	}
	if len(r.Images) > 0 {
		out["images"] = r.Images
	}
	if r.ParkingSpaces != nil {
		out["parking_spaces"] = *r.ParkingSpaces
	}
	if r.Pool != nil {
		out["pool"] = *r.Pool
	}
	putStr("listing_id", r.ListingID)
	putStr("date_listed", r.DateListed)
	putStr("construction_stage", r.ConstructionStage)

	if r.Method != "" {
		out["extraction_method"] = r.Method
	}
	if r.Confidence > 0 {
		out["confidence"] = r.Confidence
	}
	if len(r.FieldConfidence) > 0 {
		out["field_confidence"] = r.FieldConfidence
	}

	return out
}
