package screening

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity scores two names from 0 to 100 using the Levenshtein ratio
// 100 * (1 - distance / longer length). Comparison ignores case and runs
// of whitespace. Either name blank scores 0.
func Similarity(a, b string) float64 {
	a, b = normalizeName(a), normalizeName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}

	distance := levenshtein.ComputeDistance(a, b)
	ratio := 100 * (1 - float64(distance)/float64(longest))
	return math.Round(ratio*100) / 100
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
