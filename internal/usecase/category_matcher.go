package usecase

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/shelfscan/backend/internal/domain"
)

var nonWordRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// categorySynonyms maps single lowercase words, including the loose
// single-word category set some prompts ask for, onto canonical categories
var categorySynonyms = map[string]domain.Category{
	// Beauty
	"beauty":     domain.CategoryBeauty,
	"cosmetic":   domain.CategoryBeauty,
	"cosmetics":  domain.CategoryBeauty,
	"makeup":     domain.CategoryBeauty,
	"skincare":   domain.CategoryBeauty,
	"kecantikan": domain.CategoryBeauty,

	// Food & Beverage
	"food":      domain.CategoryFood,
	"foods":     domain.CategoryFood,
	"beverage":  domain.CategoryFood,
	"beverages": domain.CategoryFood,
	"drink":     domain.CategoryFood,
	"drinks":    domain.CategoryFood,
	"snack":     domain.CategoryFood,
	"snacks":    domain.CategoryFood,
	"grocery":   domain.CategoryFood,
	"makanan":   domain.CategoryFood,
	"minuman":   domain.CategoryFood,

	// Stationery
	"stationery": domain.CategoryStationery,
	"office":     domain.CategoryStationery,
	"atk":        domain.CategoryStationery,

	// Electronics
	"electronics": domain.CategoryElectronics,
	"electronic":  domain.CategoryElectronics,
	"elektronik":  domain.CategoryElectronics,
	"gadget":      domain.CategoryElectronics,
	"gadgets":     domain.CategoryElectronics,

	// Home & Living
	"home":      domain.CategoryHome,
	"living":    domain.CategoryHome,
	"household": domain.CategoryHome,
	"kitchen":   domain.CategoryHome,
	"furniture": domain.CategoryHome,
	"rumah":     domain.CategoryHome,

	// Other
	"other":   domain.CategoryOther,
	"others":  domain.CategoryOther,
	"lainnya": domain.CategoryOther,
}

// synonymWords keeps fuzzy matching deterministic
var synonymWords = slices.Sorted(maps.Keys(categorySynonyms))

// categoryStopWords are connectors that never decide a category
var categoryStopWords = map[string]bool{
	"and": true,
	"dan": true,
	"of":  true,
	"the": true,
}

// MatchCategory maps a free-form category label onto the canonical
// enumeration. Unknown and missing labels become Other.
func MatchCategory(label string) domain.Category {
	label = strings.TrimSpace(label)
	if isMissing(label) {
		return domain.CategoryOther
	}

	for _, c := range domain.Categories {
		if strings.EqualFold(label, string(c)) {
			return c
		}
	}

	tokens := tokenize(label)

	// Exact synonym on any token wins over fuzzy matches
	for _, token := range tokens {
		if c, ok := categorySynonyms[token]; ok {
			return c
		}
	}

	for _, token := range tokens {
		for _, synonym := range synonymWords {
			if fuzzyTokenMatch(token, synonym, 1) {
				return categorySynonyms[synonym]
			}
		}
	}

	return domain.CategoryOther
}

// tokenize splits a label into lowercase words without punctuation or connectors
func tokenize(s string) []string {
	cleaned := nonWordRegex.ReplaceAllString(strings.ToLower(s), " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if categoryStopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold.
// Short words are excluded so that e.g. "hair" never lands on "home".
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	if len(token1) < 5 || len(token2) < 5 {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return levenshteinDistance(token1, token2) <= threshold
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rolling rows instead of the full matrix
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}
