// Package format renders token and USD magnitudes for display.
package format

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"swapScope/internal/model"
)

const maxFixedPlaces = 6

// TokenAmount formats x for a token with the given decimals.
//
//	0                 -> "0"
//	x < 10^-decimals  -> "< 0.000001" (for 6 decimals)
//	x < 0.01          -> three significant digits
//	otherwise         -> min(decimals, 6) places, trailing zeros trimmed
func TokenAmount(x float64, decimals int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "-"
	}
	if x == 0 {
		return "0"
	}
	if decimals < 0 {
		decimals = model.DefaultDecimals
	}

	v := decimal.NewFromFloat(x)
	floor := decimal.New(1, int32(-decimals))
	if v.Abs().LessThan(floor) {
		return "< " + floor.String()
	}
	if v.Abs().LessThan(decimal.New(1, -2)) {
		return significant(v, 3)
	}
	return trimZeros(v.StringFixed(int32(min(decimals, maxFixedPlaces))))
}

// TokenAmountFor formats x using the token's decimals.
func TokenAmountFor(x float64, t model.Token) string {
	return TokenAmount(x, t.DecimalsOrDefault())
}

// USD formats a dollar amount with two decimals.
func USD(x float64) string {
	return TokenAmount(x, 2)
}

func significant(v decimal.Decimal, digits int32) string {
	mag := magnitude(v)
	places := digits - 1 - mag
	r := v.Round(places)
	if magnitude(r) > mag {
		places--
		r = v.Round(places)
	}
	return r.StringFixed(places)
}

// magnitude returns floor(log10(|v|)) for non-zero v.
func magnitude(v decimal.Decimal) int32 {
	return int32(v.NumDigits()) + v.Exponent() - 1
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
