package migration

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

// Destination field size limits the source may already violate.
const (
	maxNoteTitleLen = 250
	maxNoteBodyLen  = 32000
)

// entityID extracts the numeric ID from an Entity.
func entityID(e models.Entity) int {
	return toInt(e["id"])
}

// intField safely extracts an int field from a map.
func intField(obj map[string]interface{}, field string) int {
	return toInt(obj[field])
}

// stringField safely extracts a string field, returning "" if nil.
func stringField(obj map[string]interface{}, field string) string {
	if v, ok := obj[field].(string); ok {
		return v
	}
	return ""
}

// boolField extracts a bool field. Some zones serialize flags as 0/1.
func boolField(obj map[string]interface{}, field string) bool {
	switch v := obj[field].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// toInt converts various numeric types to int.
func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

// truncateTo cuts a string to at most maxLen characters.
func truncateTo(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// isMaskedValue reports whether a value is the API's redacted form for
// protected fields (a non-empty run of '*' characters). Masked values must
// never be blindly copied to the destination.
func isMaskedValue(v interface{}) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	for _, r := range s {
		if r != '*' {
			return false
		}
	}
	return true
}

// contentHeader builds the migration provenance header prefixed onto copied
// content, so provenance is visible without relying on metadata.
func contentHeader(kind string, sourceID int, sourceScope string, at time.Time) string {
	return fmt.Sprintf("[Migrated from %s #%d (%s) at %s]\n\n",
		kind, sourceID, sourceScope, at.UTC().Format(time.RFC3339))
}

// renderTemplate substitutes named {placeholder} values into a caller-supplied
// audit template. Unknown placeholders are left as-is.
func renderTemplate(tpl string, values map[string]string) string {
	out := tpl
	for name, value := range values {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// findKeyFold locates a map key case-insensitively, returning the actual key.
func findKeyFold(obj map[string]interface{}, field string) (string, bool) {
	if _, ok := obj[field]; ok {
		return field, true
	}
	for k := range obj {
		if strings.EqualFold(k, field) {
			return k, true
		}
	}
	return "", false
}
