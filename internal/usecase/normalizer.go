package usecase

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shelfscan/backend/internal/domain"
)

var nonDigitRegex = regexp.MustCompile(`[^0-9]`)

// Field aliases seen in model output, in lookup order. Prompts that ask for
// "price (IDR)" or Indonesian keys still land on the canonical fields.
var (
	nameKeys     = []string{"name", "product_name", "productName", "nama"}
	priceKeys    = []string{"price", "price (IDR)", "price_idr", "harga"}
	unitKeys     = []string{"unit", "size", "ukuran"}
	skuKeys      = []string{"sku", "barcode", "code"}
	categoryKeys = []string{"category", "kategori"}
)

// missingSentinels are values models use to say "unknown"
var missingSentinels = map[string]bool{
	"":        true,
	"n/a":     true,
	"na":      true,
	"null":    true,
	"none":    true,
	"-":       true,
	"unknown": true,
}

// Normalize converts a backend result into a canonical record. It never
// fails: unknown fields become missing, and output with no recoverable JSON
// object becomes the placeholder error record for the media kind.
func Normalize(raw domain.RawResult, kind domain.MediaKind) domain.Record {
	obj := raw.Object
	if obj == nil && raw.Text != "" {
		obj, _ = domain.FindJSONObject(raw.Text)
	}

	if obj == nil {
		if line := strings.TrimSpace(raw.Line); line != "" {
			return FromText(line)
		}
		return domain.PlaceholderRecord(kind)
	}

	return fromObject(unwrapObject(obj), raw.Line)
}

// FromText is the fallback record for a product line that could not be
// structured: the line becomes the name and every other field is missing.
func FromText(line string) domain.Record {
	name := strings.TrimSpace(line)
	if name == "" {
		name = domain.UnknownName
	}
	return domain.Record{
		Name:     name,
		Category: domain.CategoryOther,
	}
}

func fromObject(obj map[string]any, line string) domain.Record {
	record := domain.Record{
		Name:     normalizeName(lookup(obj, nameKeys), line),
		Price:    ParsePrice(lookup(obj, priceKeys)),
		Unit:     NormalizeUnit(stringValue(lookup(obj, unitKeys))),
		SKU:      normalizeSKU(stringValue(lookup(obj, skuKeys))),
		Category: MatchCategory(stringValue(lookup(obj, categoryKeys))),
	}
	return record
}

// unwrapObject descends into {"product": {...}} style wrappers
func unwrapObject(obj map[string]any) map[string]any {
	if len(obj) != 1 {
		return obj
	}
	for _, keys := range [][]string{nameKeys, priceKeys, unitKeys, skuKeys, categoryKeys} {
		if lookup(obj, keys) != nil {
			return obj
		}
	}
	for _, v := range obj {
		if inner, ok := v.(map[string]any); ok {
			return inner
		}
	}
	return obj
}

// lookup returns the first alias present in obj, matching keys case-insensitively
func lookup(obj map[string]any, aliases []string) any {
	for _, alias := range aliases {
		if v, ok := obj[alias]; ok {
			return v
		}
	}
	for _, alias := range aliases {
		for key, v := range obj {
			if strings.EqualFold(strings.TrimSpace(key), alias) {
				return v
			}
		}
	}
	return nil
}

func normalizeName(v any, line string) string {
	name := strings.TrimSpace(stringValue(v))
	if !isMissing(name) {
		return name
	}
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return domain.UnknownName
}

func normalizeSKU(v string) string {
	v = strings.TrimSpace(v)
	if isMissing(v) {
		return ""
	}
	return strings.ToUpper(v)
}

// ParsePrice coerces a raw price into whole currency units. Strings keep
// only their digits ("Rp 25.000" is 25000); numbers are rounded; negative,
// non-finite, empty and non-numeric values are missing.
func ParsePrice(v any) *int64 {
	switch p := v.(type) {
	case float64:
		return priceFromFloat(p)
	case float32:
		return priceFromFloat(float64(p))
	case int:
		return priceFromFloat(float64(p))
	case int64:
		if p < 0 {
			return nil
		}
		return domain.Int64(p)
	case json.Number:
		if n, err := p.Int64(); err == nil {
			if n < 0 {
				return nil
			}
			return domain.Int64(n)
		}
		f, err := p.Float64()
		if err != nil {
			return nil
		}
		return priceFromFloat(f)
	case string:
		if isMissing(p) {
			return nil
		}
		digits := nonDigitRegex.ReplaceAllString(p, "")
		if digits == "" {
			return nil
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return nil
		}
		return domain.Int64(n)
	default:
		return nil
	}
}

func priceFromFloat(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return nil
	}
	return domain.Int64(int64(math.Round(f)))
}

// stringValue renders scalar JSON values as text; anything else is empty
func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

func isMissing(s string) bool {
	return missingSentinels[strings.ToLower(strings.TrimSpace(s))]
}
