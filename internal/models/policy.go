package models

import "fmt"

// PricingPolicy controls how a supplier cost is turned into a selling price.
// The active policy is persisted as a single key-value document; call-site
// overrides take precedence over the stored policy, which takes precedence
// over the built-in defaults.
type PricingPolicy struct {
	MarkupMultiplier   float64  `json:"markup_multiplier"`
	MinPrice           *float64 `json:"min_price"`
	MaxPrice           *float64 `json:"max_price"`
	RoundingEnding     *float64 `json:"rounding_ending"`
	ShowCompareAtPrice bool     `json:"show_compare_at_price"`
	CompareAtMarkup    float64  `json:"compare_at_markup"`
}

func DefaultPolicy() PricingPolicy {
	ending := 0.95
	return PricingPolicy{
		MarkupMultiplier:   2.0,
		RoundingEnding:     &ending,
		ShowCompareAtPrice: true,
		CompareAtMarkup:    1.35,
	}
}

func (p PricingPolicy) Validate() error {
	if p.MarkupMultiplier < 1 {
		return fmt.Errorf("markup_multiplier must be >= 1, got %v", p.MarkupMultiplier)
	}
	if p.CompareAtMarkup < 1 {
		return fmt.Errorf("compare_at_markup must be >= 1, got %v", p.CompareAtMarkup)
	}
	if p.RoundingEnding != nil && (*p.RoundingEnding < 0 || *p.RoundingEnding >= 1) {
		return fmt.Errorf("rounding_ending must be in [0, 1), got %v", *p.RoundingEnding)
	}
	if p.MinPrice != nil && p.MaxPrice != nil && *p.MinPrice > *p.MaxPrice {
		return fmt.Errorf("min_price %v exceeds max_price %v", *p.MinPrice, *p.MaxPrice)
	}
	return nil
}

// PolicyOverrides carries per-call adjustments to the stored policy.
// Only non-nil fields are applied; an override cannot clear a stored bound.
type PolicyOverrides struct {
	MarkupMultiplier   *float64 `json:"markup_multiplier,omitempty"`
	MinPrice           *float64 `json:"min_price,omitempty"`
	MaxPrice           *float64 `json:"max_price,omitempty"`
	RoundingEnding     *float64 `json:"rounding_ending,omitempty"`
	ShowCompareAtPrice *bool    `json:"show_compare_at_price,omitempty"`
	CompareAtMarkup    *float64 `json:"compare_at_markup,omitempty"`
}

// Apply returns a copy of the policy with the overrides layered on top.
func (o *PolicyOverrides) Apply(p PricingPolicy) PricingPolicy {
	if o == nil {
		return p
	}
	if o.MarkupMultiplier != nil {
		p.MarkupMultiplier = *o.MarkupMultiplier
	}
	if o.MinPrice != nil {
		p.MinPrice = o.MinPrice
	}
	if o.MaxPrice != nil {
		p.MaxPrice = o.MaxPrice
	}
	if o.RoundingEnding != nil {
		p.RoundingEnding = o.RoundingEnding
	}
	if o.ShowCompareAtPrice != nil {
		p.ShowCompareAtPrice = *o.ShowCompareAtPrice
	}
	if o.CompareAtMarkup != nil {
		p.CompareAtMarkup = *o.CompareAtMarkup
	}
	return p
}
