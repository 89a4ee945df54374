// Package fixedpoint does money arithmetic on float64 inputs without binary
// floating-point drift. Operands are converted to exact decimals, combined,
// and rounded once to the requested scale.
package fixedpoint

import (
	"math"

	"github.com/shopspring/decimal"
)

// Common scales.
const (
	VolumeDecimals   int32 = 8
	PriceDecimals    int32 = 8
	CurrencyDecimals int32 = 2
	PercentDecimals  int32 = 2
)

var hundred = decimal.NewFromInt(100)

func fromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func toFloat(d decimal.Decimal, decimals int32) float64 {
	f, _ := d.Round(decimals).Float64()
	return f
}

// Add returns a+b rounded to decimals.
func Add(a, b float64, decimals int32) float64 {
	return toFloat(fromFloat(a).Add(fromFloat(b)), decimals)
}

// Subtract returns a-b rounded to decimals.
func Subtract(a, b float64, decimals int32) float64 {
	return toFloat(fromFloat(a).Sub(fromFloat(b)), decimals)
}

// Multiply returns a*b rounded to decimals.
func Multiply(a, b float64, decimals int32) float64 {
	return toFloat(fromFloat(a).Mul(fromFloat(b)), decimals)
}

// Divide returns a/b rounded to decimals. Division by zero yields 0, so a
// zero result does not imply a meaningful ratio.
func Divide(a, b float64, decimals int32) float64 {
	db := fromFloat(b)
	if db.IsZero() {
		return 0
	}
	return toFloat(fromFloat(a).DivRound(db, decimals+4), decimals)
}

// Sum adds values and rounds the total once.
func Sum(values []float64, decimals int32) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(fromFloat(v))
	}
	return toFloat(total, decimals)
}

// WeightedAverage returns Σ(v·w)/Σw. It returns 0 when the slices differ in
// length or the weights sum to zero.
func WeightedAverage(values, weights []float64, decimals int32) float64 {
	if len(values) != len(weights) || len(values) == 0 {
		return 0
	}
	num, den := decimal.Zero, decimal.Zero
	for i := range values {
		w := fromFloat(weights[i])
		num = num.Add(fromFloat(values[i]).Mul(w))
		den = den.Add(w)
	}
	if den.IsZero() {
		return 0
	}
	return toFloat(num.DivRound(den, decimals+4), decimals)
}

// ProfitRate returns (exit-entry)/entry*100 rounded to two decimals, or 0
// when entry is zero.
func ProfitRate(entry, exit float64) float64 {
	de := fromFloat(entry)
	if de.IsZero() {
		return 0
	}
	diff := fromFloat(exit).Sub(de)
	return toFloat(diff.Mul(hundred).DivRound(de, PercentDecimals+4), PercentDecimals)
}

// FloorToStep rounds value down to the nearest multiple of step. The result
// never exceeds value. A non-positive step yields 0.
func FloorToStep(value, step float64) float64 {
	ds := fromFloat(step)
	if !ds.IsPositive() {
		return 0
	}
	n := fromFloat(value).Div(ds).Floor()
	f, _ := n.Mul(ds).Float64()
	return f
}
