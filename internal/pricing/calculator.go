package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pricesync/internal/models"
)

// Computed is the output of one price calculation.
type Computed struct {
	Price          float64
	CompareAtPrice *float64
}

// Compute maps a supplier cost to a selling price under the given policy.
// Pure: same inputs always produce the same output.
//
// The ending rounding is deliberately NOT a true "nearest ending" rounding:
// the whole part is rounded with a plain 0.5 threshold and the ending is then
// attached one unit below it, so e.g. a raw 25.00 with ending 0.95 yields
// 24.95. Preserved as-is; changing it would silently alter every computed
// price.
func Compute(supplierPrice float64, policy models.PricingPolicy) (Computed, error) {
	if supplierPrice <= 0 {
		return Computed{}, fmt.Errorf("supplier price must be positive, got %v", supplierPrice)
	}
	if err := policy.Validate(); err != nil {
		return Computed{}, err
	}

	raw := decimal.NewFromFloat(supplierPrice).Mul(decimal.NewFromFloat(policy.MarkupMultiplier))

	price := raw
	if policy.RoundingEnding != nil {
		price = roundToEnding(raw, *policy.RoundingEnding)
	}

	// Floor before ceiling.
	if policy.MinPrice != nil {
		if min := decimal.NewFromFloat(*policy.MinPrice); price.LessThan(min) {
			price = min
		}
	}
	if policy.MaxPrice != nil {
		if max := decimal.NewFromFloat(*policy.MaxPrice); price.GreaterThan(max) {
			price = max
		}
	}

	out := Computed{Price: price.Round(2).InexactFloat64()}

	if policy.ShowCompareAtPrice {
		compare := price.Mul(decimal.NewFromFloat(policy.CompareAtMarkup))
		if policy.RoundingEnding != nil {
			compare = roundToEnding(compare, *policy.RoundingEnding)
		}
		c := compare.Round(2).InexactFloat64()
		out.CompareAtPrice = &c
	}

	return out, nil
}

// roundToEnding rounds the whole part of raw with a 0.5 threshold on its
// fractional part, then attaches the target ending one unit below. Values
// whose ending-rounded price would be non-positive fall back to the ending
// itself.
func roundToEnding(raw decimal.Decimal, ending float64) decimal.Decimal {
	whole := raw.Floor()
	frac := raw.Sub(whole)
	end := decimal.NewFromFloat(ending)

	var price decimal.Decimal
	if frac.GreaterThanOrEqual(decimal.NewFromFloat(0.5)) {
		price = whole.Add(end)
	} else {
		price = whole.Sub(decimal.NewFromInt(1)).Add(end)
	}
	if !price.IsPositive() {
		price = end
	}
	return price
}

// Direction classifies a price delta. Deltas below a cent count as no change.
func Direction(previous, next float64) string {
	delta := decimal.NewFromFloat(next).Sub(decimal.NewFromFloat(previous))
	switch {
	case delta.Abs().LessThan(decimal.NewFromFloat(0.01)):
		return models.DirectionNone
	case delta.IsPositive():
		return models.DirectionIncrease
	default:
		return models.DirectionDecrease
	}
}
