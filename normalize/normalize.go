// Package normalize maps raw extraction output onto the canonical
// property schema. Normalize is pure and idempotent: canonical input
// passes through unchanged.
package normalize

import (
	"fmt"
	"strings"
)

// metadataFields never reach the property record.
var metadataFields = []string{
	"tokens_used",
	"raw_html",
	"confidence_reasoning",
	"extracted_at",
	"field_confidence",
}

// droppedFields are consumed while building location and then
// discarded, together with agent contact data.
var droppedFields = []string{
	"address",
	"city",
	"province",
	"country",
	"agent_name",
	"agent_phone",
	"agent_email",
}

// fieldMapping renames extractor vocabulary to schema vocabulary.
var fieldMapping = map[string]string{
	"title":        "property_name",
	"area_m2":      "square_meters",
	"listing_type": "status",
}

var statusMapping = map[string]string{
	"for_sale": "available",
	"for_rent": "available",
	"sold":     "sold",
}

var defaultUserRoles = []string{"buyer", "staff", "admin"}

// Normalize converts a raw field bag into canonical form. The input
// map is not modified. Unrecognized keys pass through untouched.
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	if !present(out, "user_roles") {
		out["user_roles"] = defaultUserRoles
	}

	for _, field := range metadataFields {
		delete(out, field)
	}
	for k := range out {
		if strings.HasSuffix(k, "_evidence") {
			delete(out, k)
		}
	}

	for oldName, newName := range fieldMapping {
		if v, ok := out[oldName]; ok {
			out[newName] = v
			delete(out, oldName)
		}
	}

	// Status always lands in the closed set, even when extraction
	// produced no listing_type at all.
	s, _ := out["status"].(string)
	mapped, known := statusMapping[s]
	if !known {
		mapped = "available"
	}
	out["status"] = mapped

	if !present(out, "property_type") {
		out["property_type"] = "house"
	}

	normalizeLocation(out)

	for _, field := range droppedFields {
		delete(out, field)
	}

	return out
}

// normalizeLocation fills the location field from progressively
// weaker sources: address parts, then coordinates, then a fixed
// placeholder.
func normalizeLocation(out map[string]any) {
	if present(out, "location") {
		return
	}

	if present(out, "city") || present(out, "address") {
		var parts []string
		for _, key := range []string{"address", "city", "province"} {
			if s := str(out[key]); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			out["location"] = strings.Join(parts, ", ")
			return
		}
	}

	if present(out, "latitude") && present(out, "longitude") {
		out["location"] = fmt.Sprintf("%v, %v", out["latitude"], out["longitude"])
		return
	}

	out["location"] = "Unknown Location"
}

// present reports whether a key holds a usable value: not absent, not
// nil, not an empty string or list.
func present(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
