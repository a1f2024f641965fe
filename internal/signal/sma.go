package signal

import "github.com/shopspring/decimal"

// SMA computes the simple moving average of the last p values, returning
// false during warmup.
func SMA(values []decimal.Decimal, p int) (decimal.Decimal, bool) {
	if p <= 0 || len(values) < p {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, v := range values[len(values)-p:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(p))), true
}
