package riskforecast

import (
	"math"
	"sort"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// Composition is the outcome of combining a base probability with its
// multipliers
type Composition struct {
	Base        float64
	PreCap      float64
	Probability float64
	Capped      bool
	// Multipliers holds the normalized factors in application order.
	Multipliers []forecast.AppliedMultiplier
}

// Composer multiplies a base probability through a list of factors, then
// applies the materiality threshold and the hard cap.
//
// The threshold is checked against the pre-cap product and the cap is applied
// afterwards. Tables.Validate rejects a threshold above the cap, so the two
// orders give the same result for every valid configuration.
type Composer struct {
	cap       float64
	threshold float64
}

// NewComposer creates a composer with the given cap and suppression threshold
func NewComposer(probabilityCap, threshold float64) Composer {
	return Composer{cap: probabilityCap, threshold: threshold}
}

// Compose returns false when the result is below the materiality threshold.
// It never fails: non-finite or non-positive factors count as 1.0 and an
// unusable base counts as 0.
func (c Composer) Compose(base float64, multipliers []forecast.AppliedMultiplier) (Composition, bool) {
	base, product, applied := c.multiply(base, multipliers)
	if product < c.threshold {
		return Composition{}, false
	}

	result := Composition{
		Base:        base,
		PreCap:      product,
		Probability: product,
		Multipliers: applied,
	}
	if product > c.cap {
		result.Probability = c.cap
		result.Capped = true
	}

	return result, true
}

// Bound returns the capped product without the materiality check
func (c Composer) Bound(base float64, multipliers []forecast.AppliedMultiplier) float64 {
	_, product, _ := c.multiply(base, multipliers)
	return math.Min(product, c.cap)
}

func (c Composer) multiply(base float64, multipliers []forecast.AppliedMultiplier) (float64, float64, []forecast.AppliedMultiplier) {
	if math.IsNaN(base) || math.IsInf(base, 0) || base < 0 {
		base = 0
	}

	applied := make([]forecast.AppliedMultiplier, len(multipliers))
	factors := make([]float64, len(multipliers))
	for i, m := range multipliers {
		f := neutralize(m.Factor)
		applied[i] = forecast.AppliedMultiplier{Name: m.Name, Factor: f}
		factors[i] = f
	}

	// Multiplying in a canonical order makes the product bit-for-bit
	// independent of how the caller ordered the list.
	sort.Float64s(factors)
	product := base
	for _, f := range factors {
		product *= f
	}
	return base, product, applied
}

func neutralize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 1.0
	}
	return f
}
