package swap

import (
	"math"

	"swapScope/internal/model"
)

// RoundTo rounds x to decimals places, half away from zero. Values whose scaled
// form overflows are returned unchanged.
func RoundTo(x float64, decimals int) float64 {
	if decimals < 0 {
		decimals = model.DefaultDecimals
	}
	scale := math.Pow(10, float64(decimals))
	scaled := x * scale
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) || math.IsInf(scale, 0) {
		return x
	}
	return math.Round(scaled) / scale
}

// Amount converts usd into token units at price, rounded to decimals places.
// ok is false for non-finite or non-positive inputs and degenerate results.
func Amount(usd, price float64, decimals int) (float64, bool) {
	if !positiveFinite(usd) || !positiveFinite(price) {
		return 0, false
	}
	raw := usd / price
	if math.IsInf(raw, 0) || math.IsNaN(raw) {
		return 0, false
	}
	return RoundTo(raw, decimals), true
}

// Calculate derives both sides of a swap from their unit prices. It returns
// false when there is no valid calculation.
func Calculate(sourcePrice, targetPrice, usd float64, source, target model.Token) (model.SwapCalculation, bool) {
	sourceAmount, ok := Amount(usd, sourcePrice, source.DecimalsOrDefault())
	if !ok {
		return model.SwapCalculation{}, false
	}
	targetAmount, ok := Amount(usd, targetPrice, target.DecimalsOrDefault())
	if !ok {
		return model.SwapCalculation{}, false
	}
	return model.SwapCalculation{
		SourceAmount: sourceAmount,
		TargetAmount: targetAmount,
		USDAmount:    usd,
		SourceToken:  source,
		TargetToken:  target,
	}, true
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
