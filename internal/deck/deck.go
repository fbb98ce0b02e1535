package deck

import (
	"strconv"
	"strings"

	"github.com/ranielm/planning-poker-sub000/internal/models"
)

// Sentinel cards. Both are legal in every scheme and are excluded from the
// numeric/modal computation but counted as skipped.
const (
	CardUnknown = "?"
	CardCoffee  = "coffee"
)

// fibonacciValues is the canonical sequence used for both validation and
// nearest-value rounding of the average.
var fibonacciValues = []int{0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89}

// tshirtSizes in ascending ordinal position. Modal ties break toward the
// later (larger) size.
var tshirtSizes = []string{"XS", "S", "M", "L", "XL", "XXL"}

// Cards returns the full playable deck for a scheme, sentinels included.
func Cards(scheme models.Scheme) []string {
	var cards []string
	switch scheme {
	case models.SchemeTShirt:
		cards = append(cards, tshirtSizes...)
	default:
		for _, v := range fibonacciValues {
			cards = append(cards, strconv.Itoa(v))
		}
	}
	return append(cards, CardUnknown, CardCoffee)
}

// IsValid reports whether value is a legal card for the scheme. T-shirt
// sizes are matched case-insensitively.
func IsValid(scheme models.Scheme, value string) bool {
	if value == CardUnknown || value == CardCoffee {
		return true
	}
	switch scheme {
	case models.SchemeTShirt:
		return tshirtOrdinal(value) >= 0
	case models.SchemeFibonacci:
		_, ok := fibonacciValue(value)
		return ok
	}
	return false
}

// Normalize canonicalizes a valid card value (upper-cases t-shirt sizes).
// Invalid values are returned unchanged.
func Normalize(scheme models.Scheme, value string) string {
	if scheme == models.SchemeTShirt && tshirtOrdinal(value) >= 0 {
		return strings.ToUpper(value)
	}
	return value
}

func isSkip(value string) bool {
	return value == CardUnknown || value == CardCoffee
}

func fibonacciValue(s string) (int, bool) {
	for _, v := range fibonacciValues {
		if strconv.Itoa(v) == s {
			return v, true
		}
	}
	return 0, false
}

func tshirtOrdinal(s string) int {
	up := strings.ToUpper(s)
	for i, size := range tshirtSizes {
		if size == up {
			return i
		}
	}
	return -1
}
