package fixedpoint

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_AvoidsFloatDrift(t *testing.T) {
	assert.Equal(t, 0.3, Add(0.1, 0.2, 8))
	assert.Equal(t, 0.3, Add(0.1, 0.2, 2))
	assert.Equal(t, 1.23, Add(1.225, 0.001, 2))
}

func TestAdd_CommutativeAndAssociative(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 1234567.891, 0.000000015, 98765.4321, -42.125}
	for _, d := range []int32{2, 8} {
		unit := decimal.New(1, -d)
		for _, a := range values {
			for _, b := range values {
				assert.Equal(t, Add(a, b, d), Add(b, a, d))
				for _, c := range values {
					left := Add(Add(a, b, d), c, d)
					right := Add(a, Add(b, c, d), d)
					// Compared in decimal: float64 cannot hold one unit exactly.
					gap := decimal.NewFromFloat(left).Sub(decimal.NewFromFloat(right)).Abs()
					assert.True(t, gap.LessThanOrEqual(unit),
						"a=%v b=%v c=%v d=%d gap=%s", a, b, c, d, gap)
				}
			}
		}
	}
}

func TestSubtractMultiply(t *testing.T) {
	assert.Equal(t, 0.1, Subtract(0.3, 0.2, 8))
	assert.Equal(t, 138000.0, Multiply(100, 1380, 2))
	assert.Equal(t, 0.07, Multiply(0.1, 0.7, 2))
}

func TestDivide_ByZeroIsZero(t *testing.T) {
	for _, x := range []float64{0, 1, -5, 1e12} {
		for _, d := range []int32{0, 2, 8} {
			assert.Zero(t, Divide(x, 0, d))
		}
	}
	assert.Equal(t, 0.33, Divide(1, 3, 2))
	assert.Equal(t, 1389.5, Divide(138950, 100, 2))
}

func TestSum(t *testing.T) {
	assert.Equal(t, 0.6, Sum([]float64{0.1, 0.2, 0.3}, 8))
	assert.Zero(t, Sum(nil, 2))
}

func TestWeightedAverage(t *testing.T) {
	assert.Equal(t, 17.5, WeightedAverage([]float64{10, 20}, []float64{100, 300}, 2))
	assert.Zero(t, WeightedAverage([]float64{10}, []float64{0}, 2))
	assert.Zero(t, WeightedAverage([]float64{10, 20}, []float64{1}, 2))
	assert.Zero(t, WeightedAverage(nil, nil, 2))
}

func TestProfitRate(t *testing.T) {
	assert.Equal(t, 5.0, ProfitRate(1000, 1050))
	assert.Equal(t, -2.5, ProfitRate(1000, 975))
	assert.Zero(t, ProfitRate(0, 1050))
	assert.Zero(t, ProfitRate(0, 0))
}

func TestFloorToStep(t *testing.T) {
	assert.Equal(t, 0.01, FloorToStep(0.01, 0.001))
	assert.Equal(t, 0.01, FloorToStep(0.0123, 0.01))
	assert.Zero(t, FloorToStep(0.0009, 0.001))
	assert.Zero(t, FloorToStep(1, 0))

	steps := []float64{0.001, 0.01, 0.1, 1, 0.005}
	inputs := []float64{0.0123, 0.99999, 1.2345678, 17.3, 0.004999}
	for _, step := range steps {
		for _, in := range inputs {
			got := FloorToStep(in, step)
			assert.LessOrEqual(t, got, in)

			q := decimal.NewFromFloat(got).Div(decimal.NewFromFloat(step))
			require.True(t, q.Equal(q.Floor()), "%v is not a multiple of %v", got, step)
		}
	}
}
