package money

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
)

func TestProrateSixtyForty(t *testing.T) {
	parts := Prorate(2000, []Cents{6000, 4000})
	require.Equal(t, []Cents{1200, 800}, parts)
}

func TestProrateSumsExactly(t *testing.T) {
	cases := []struct {
		total   Cents
		weights []Cents
	}{
		{total: 1000, weights: []Cents{3333, 3333, 3334}},
		{total: 1, weights: []Cents{100, 100, 100}},
		{total: 999, weights: []Cents{1, 2, 3, 4, 5, 6, 7}},
		{total: 12345, weights: []Cents{70001, 29999}},
	}
	for _, c := range cases {
		parts := Prorate(c.total, c.weights)
		var sum, wsum Cents
		for _, p := range parts {
			sum += p
		}
		for _, w := range c.weights {
			wsum += w
		}
		assert.Equal(t, c.total, sum)
		for i, p := range parts {
			exact := float64(c.total) * float64(c.weights[i]) / float64(wsum)
			assert.InDelta(t, exact, float64(p), 1.0)
		}
	}
}

func TestProrateZeroWeights(t *testing.T) {
	require.Equal(t, []Cents{0, 0}, Prorate(500, []Cents{0, 0}))
	require.Equal(t, []Cents{0, 0}, Prorate(0, []Cents{10, 20}))
}

func TestRounding(t *testing.T) {
	assert.Equal(t, Cents(1500), Percent(10000, 15))
	assert.Equal(t, Cents(2), Percent(15, 10)) // 1.5 rounds half-up
	assert.Equal(t, Cents(825), Bps(10000, 825))
	assert.Equal(t, Cents(0), MulRatio(10, 1, 0))
	assert.Equal(t, "12.05", Cents(1205).String())
	assert.Equal(t, "-0.07", Cents(-7).String())
}

func TestProrateLargeAmounts(t *testing.T) {
	// total*weight is far past the int64 range
	total := Cents(math.MaxInt64 / 2)
	parts := Prorate(total, []Cents{math.MaxInt64 / 4, math.MaxInt64 / 4, math.MaxInt64 / 2})
	require.Len(t, parts, 3)
	assert.Equal(t, total, parts[0]+parts[1]+parts[2])
	for _, p := range parts {
		assert.Positive(t, int64(p))
	}
	assert.InDelta(t, float64(total)/4, float64(parts[0]), 2)
	assert.InDelta(t, float64(total)/2, float64(parts[2]), 2)

	// the weight sum itself overflows int64
	parts = Prorate(1_000_000, []Cents{math.MaxInt64, math.MaxInt64, math.MaxInt64})
	assert.Equal(t, []Cents{333334, 333333, 333333}, parts)
}

func TestProrateNegativeAndSkewed(t *testing.T) {
	assert.Equal(t, []Cents{-1200, -800}, Prorate(-2000, []Cents{6000, 4000}))
	assert.Equal(t, []Cents{0, 500}, Prorate(500, []Cents{-10, 20}))
}

func TestMulRatioLargeAmounts(t *testing.T) {
	big := Cents(math.MaxInt64 / 100)
	assert.Equal(t, big/10_000*825+MulRatio(big%10_000, 825, 10_000), Bps(big, 825))
	assert.Equal(t, Cents(math.MaxInt64), MulRatio(math.MaxInt64, 3, 2))
	assert.Equal(t, Cents(math.MinInt64), MulRatio(math.MinInt64+1, 3, 2))
	assert.Equal(t, Cents(-2), Percent(-15, 10))
}
