package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Band is the inclusive acceptance range around an expected amount.
type Band struct {
	Expected decimal.Decimal
	Min      decimal.Decimal
	Max      decimal.Decimal
}

// NewBand returns [E*(1-T/100), E*(1+T/100)]. A negative tolerance is treated as zero.
func NewBand(expected, tolerancePercent decimal.Decimal) Band {
	if tolerancePercent.IsNegative() {
		tolerancePercent = decimal.Zero
	}
	t := tolerancePercent.Div(hundred)
	return Band{
		Expected: expected,
		Min:      expected.Mul(decimal.NewFromInt(1).Sub(t)),
		Max:      expected.Mul(decimal.NewFromInt(1).Add(t)),
	}
}

func (b Band) Contains(x decimal.Decimal) bool {
	return x.GreaterThanOrEqual(b.Min) && x.LessThanOrEqual(b.Max)
}
