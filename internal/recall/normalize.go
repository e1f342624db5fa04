package recall

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field aliases seen across agency feeds. Lookup is first-alias-wins.
var (
	sourceIDAliases = []string{"source_id", "recall_id", "recall_number", "recall_case_number", "campaign_number", "id"}
	nameAliases     = []string{"name", "product_name", "product", "product_description", "title"}
	brandAliases    = []string{"brand", "brand_name", "manufacturer", "maker"}

	identifierAliases = map[string][]string{
		IdentifierUPC:         {"upc", "upc_code"},
		IdentifierEAN:         {"ean", "ean_code"},
		IdentifierGTIN:        {"gtin", "gtin_code"},
		IdentifierModelNumber: {"model_number", "model", "model_no"},
		IdentifierLotNumber:   {"lot_number", "lot", "batch_number", "code_info"},
	}
)

// Normalize maps a source-native payload into the canonical Record
// shape. It is total: malformed fields are dropped and reported as
// warnings, never as an error. A record missing its source id comes
// back with an empty SourceID; callers skip those.
func Normalize(agency string, raw RawRecord, fetchedAt time.Time) (Record, []string) {
	var warnings []string

	rec := Record{
		Agency:      agency,
		Identifiers: map[string]string{},
		FetchedAt:   fetchedAt.UTC(),
		Payload:     map[string]any{},
	}
	for k, v := range raw {
		rec.Payload[k] = v
	}

	lowered := make(map[string]any, len(raw))
	for k, v := range raw {
		lowered[strings.ToLower(strings.TrimSpace(k))] = v
	}

	if id, warn := lookupString(lowered, sourceIDAliases); warn != "" {
		warnings = append(warnings, warn)
	} else {
		rec.SourceID = id
	}
	if rec.SourceID == "" {
		warnings = append(warnings, "source id missing")
	}

	if name, warn := lookupString(lowered, nameAliases); warn != "" {
		warnings = append(warnings, warn)
	} else {
		rec.Name = name
	}
	if brand, warn := lookupString(lowered, brandAliases); warn != "" {
		warnings = append(warnings, warn)
	} else {
		rec.Brand = brand
	}

	for kind, aliases := range identifierAliases {
		value, warn := lookupString(lowered, aliases)
		if warn != "" {
			warnings = append(warnings, warn)
			continue
		}
		if value != "" {
			rec.Identifiers[kind] = value
		}
	}

	return rec, warnings
}

// lookupString returns the first alias present with a usable value. A
// present-but-unusable value produces a warning and stops the scan so
// the problem is visible rather than silently shadowed by a later alias.
func lookupString(fields map[string]any, aliases []string) (string, string) {
	for _, alias := range aliases {
		v, ok := fields[alias]
		if !ok || v == nil {
			continue
		}
		s, ok := coerceString(v)
		if !ok {
			return "", fmt.Sprintf("field %q: unusable value of type %T", alias, v)
		}
		if s != "" {
			return s, ""
		}
	}
	return "", ""
}

func coerceString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
