package money

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
)

// Cents is an amount in minor currency units.
type Cents int64

func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

// MulRatio returns amount*num/den rounded half-up. den must be positive.
// The product is taken in 128 bits; a result past the int64 range saturates.
func MulRatio(amount Cents, num, den int64) Cents {
	if den <= 0 {
		return 0
	}
	neg := (amount < 0) != (num < 0)
	q, r, ok := mulDiv(abs(int64(amount)), abs(num), uint64(den))
	if ok && q <= math.MaxInt64 && 2*r >= uint64(den) {
		q++
	}
	if !ok || q > math.MaxInt64 {
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	if neg {
		return Cents(-int64(q))
	}
	return Cents(q)
}

// Percent applies a whole-number percentage.
func Percent(amount Cents, pct int64) Cents { return MulRatio(amount, pct, 100) }

// Bps applies a rate given in basis points (1/100 of a percent).
func Bps(amount Cents, bps int64) Cents { return MulRatio(amount, bps, 10_000) }

// Prorate splits total across weights proportionally using the largest
// remainder method, so the parts always sum to total exactly. Negative
// weights count as zero and a zero weight sum yields all zeros. Products are
// taken in 128 bits so any int64 total and weights are safe.
func Prorate(total Cents, weights []Cents) []Cents {
	out := make([]Cents, len(weights))
	ws := make([]uint64, len(weights))
	for i, w := range weights {
		if w > 0 {
			ws[i] = uint64(w)
		}
	}
	sum := sumWeights(ws)
	if sum == 0 || total == 0 {
		return out
	}

	type rem struct {
		idx int
		r   uint64
	}
	t := abs(int64(total))
	rems := make([]rem, len(weights))
	var allocated uint64
	for i, w := range ws {
		// w <= sum so the high word is below sum and the quotient fits
		q, r, _ := mulDiv(t, w, sum)
		out[i] = Cents(q)
		allocated += q
		rems[i] = rem{idx: i, r: r}
	}

	// hand leftover cents to the largest remainders, ties by position
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].r > rems[b].r })
	left := t - allocated
	for i := 0; left > 0 && i < len(rems); i++ {
		out[rems[i].idx]++
		left--
	}
	if total < 0 {
		for i := range out {
			out[i] = -out[i]
		}
	}
	return out
}

// sumWeights adds ws, halving every weight until the sum fits in 64 bits.
func sumWeights(ws []uint64) uint64 {
	for {
		var sum, carry uint64
		for _, w := range ws {
			var c uint64
			sum, c = bits.Add64(sum, w, 0)
			carry |= c
		}
		if carry == 0 {
			return sum
		}
		for i := range ws {
			ws[i] >>= 1
		}
	}
}

// mulDiv returns a*b/d and its remainder. ok is false when the quotient
// does not fit in 64 bits.
func mulDiv(a, b, d uint64) (q, r uint64, ok bool) {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, 0, false
	}
	q, r = bits.Div64(hi, lo, d)
	return q, r, true
}

func abs(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
