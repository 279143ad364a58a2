// Package units normalizes the currency and date text found in housing notices.
package units

import (
	"strconv"
	"strings"
)

// Page-level unit markers and the divisor that brings amounts to 10,000 KRW.
var unitMarkers = []struct {
	marker  string
	divisor float64
}{
	{"(단위 : 원)", 10000},
	{"(단위 : 천원)", 10},
	{"(단위 : 만원)", 1},
}

// DefaultDivisor applies when a page declares no unit.
const DefaultDivisor = 10000

// DetectUnitDivisor returns the divisor implied by the unit marker on a page.
func DetectUnitDivisor(pageText string) float64 {
	for _, m := range unitMarkers {
		if strings.Contains(pageText, m.marker) {
			return m.divisor
		}
	}
	return DefaultDivisor
}

// ToNumeric keeps only digits and '.', parses the result and divides it by
// divisor. It returns nil for empty or unparseable input.
func ToNumeric(cell string, divisor float64) *float64 {
	var b strings.Builder
	for _, r := range cell {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || divisor == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return nil
	}
	v /= divisor
	return &v
}
