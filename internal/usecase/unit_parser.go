package usecase

import (
	"regexp"
	"strings"
)

// unitQuantityPattern matches a magnitude followed by a unit, like "180 ml",
// "1.5L", "500gr" or "12 pcs". Longer units come first in each alternation.
var unitQuantityPattern = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:fl\s*oz|ml|litres?|liters?|ltr|l|kg|mg|grams?|gr|g|oz|lbs?|pcs|pc|pieces?|packs?|pk|sachets?|tablets?|tabs?|btl|bottles?|cans?|sheets?|rolls?|boxes|box)\b`)

var spaceRegex = regexp.MustCompile(`\s+`)

// NormalizeUnit reduces a unit descriptor to a single magnitude token.
// "180 ML" becomes "180ml"; text with several quantities keeps only the
// first; descriptors without a quantity are kept as trimmed text.
func NormalizeUnit(value string) string {
	value = strings.TrimSpace(value)
	if isMissing(value) {
		return ""
	}

	if match := unitQuantityPattern.FindString(value); match != "" {
		return strings.ToLower(spaceRegex.ReplaceAllString(match, ""))
	}

	return spaceRegex.ReplaceAllString(value, " ")
}
