package riskforecast

import (
	"math"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

func factors(fs ...float64) []forecast.AppliedMultiplier {
	out := make([]forecast.AppliedMultiplier, len(fs))
	for i, f := range fs {
		out[i] = forecast.AppliedMultiplier{Name: "m", Factor: f}
	}
	return out
}

func TestComposer_Compose(t *testing.T) {
	composer := NewComposer(0.8, 0.12)

	tests := []struct {
		name        string
		base        float64
		multipliers []forecast.AppliedMultiplier
		wantOK      bool
		wantProb    float64
		wantPreCap  float64
		wantCapped  bool
	}{
		{
			name:        "capped when all defenses absent",
			base:        0.35,
			multipliers: factors(1.5, 1.8, 1.3, 1.4),
			wantOK:      true,
			wantProb:    0.8,
			wantPreCap:  1.7199,
			wantCapped:  true,
		},
		{
			name:        "suppressed when defenses are in place",
			base:        0.10,
			multipliers: factors(0.6, 0.5, 1.3),
			wantOK:      false,
		},
		{
			name:        "medium exposure in a strict region",
			base:        0.20,
			multipliers: factors(1.5, 1.8, 1.4),
			wantOK:      true,
			wantProb:    0.756,
			wantPreCap:  0.756,
		},
		{
			name:       "no multipliers",
			base:       0.2,
			wantOK:     true,
			wantProb:   0.2,
			wantPreCap: 0.2,
		},
		{
			name:       "exactly at threshold is material",
			base:       0.12,
			wantOK:     true,
			wantProb:   0.12,
			wantPreCap: 0.12,
		},
		{
			name:        "invalid factors are neutral",
			base:        0.2,
			multipliers: factors(math.NaN(), math.Inf(1), -2, 0),
			wantOK:      true,
			wantProb:    0.2,
			wantPreCap:  0.2,
		},
		{
			name:   "NaN base is suppressed",
			base:   math.NaN(),
			wantOK: false,
		},
		{
			name:        "negative base is suppressed",
			base:        -0.4,
			multipliers: factors(3),
			wantOK:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := composer.Compose(tt.base, tt.multipliers)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.Equal(t, Composition{}, result)
				return
			}

			assert.InDelta(t, tt.wantProb, result.Probability, 1e-9)
			assert.InDelta(t, tt.wantPreCap, result.PreCap, 1e-9)
			assert.Equal(t, tt.wantCapped, result.Capped)
			assert.Len(t, result.Multipliers, len(tt.multipliers))
		})
	}
}

func TestComposer_NormalizesAuditTrail(t *testing.T) {
	composer := NewComposer(0.8, 0.12)

	result, ok := composer.Compose(0.3, []forecast.AppliedMultiplier{
		{Name: "region_NL", Factor: 1.4},
		{Name: "broken", Factor: math.NaN()},
	})
	require.True(t, ok)

	assert.Equal(t, []forecast.AppliedMultiplier{
		{Name: "region_NL", Factor: 1.4},
		{Name: "broken", Factor: 1.0},
	}, result.Multipliers)
}

func TestComposer_DoesNotModifyInput(t *testing.T) {
	input := factors(1.5, math.NaN())
	_, _ = NewComposer(0.8, 0.12).Compose(0.3, input)

	assert.True(t, math.IsNaN(input[1].Factor))
}

func TestComposer_Properties(t *testing.T) {
	composer := NewComposer(0.8, 0.12)

	toMultipliers := func(raw []uint8) []forecast.AppliedMultiplier {
		out := make([]forecast.AppliedMultiplier, len(raw))
		for i, r := range raw {
			// Factors in [0.25, 2.8]
			out[i] = forecast.AppliedMultiplier{Name: "m", Factor: 0.25 + float64(r)/100}
		}
		return out
	}

	t.Run("probability stays within [0, cap]", func(t *testing.T) {
		property := func(baseRaw uint16, raw []uint8) bool {
			base := float64(baseRaw) / math.MaxUint16
			result, ok := composer.Compose(base, toMultipliers(raw))
			if !ok {
				return true
			}
			return result.Probability >= 0 && result.Probability <= 0.8
		}
		require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 1000}))
	})

	t.Run("below threshold is never material", func(t *testing.T) {
		property := func(baseRaw uint16, raw []uint8) bool {
			base := float64(baseRaw) / math.MaxUint16
			ms := toMultipliers(raw)

			product := base
			for _, m := range ms {
				product *= m.Factor
			}
			_, ok := composer.Compose(base, ms)
			if product < 0.12-1e-12 {
				return !ok
			}
			if product > 0.12+1e-12 {
				return ok
			}
			return true
		}
		require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 1000}))
	})

	t.Run("order of multipliers does not matter", func(t *testing.T) {
		property := func(baseRaw uint16, raw []uint8, seed int64) bool {
			base := float64(baseRaw) / math.MaxUint16
			ms := toMultipliers(raw)

			shuffled := append([]forecast.AppliedMultiplier(nil), ms...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			a, okA := composer.Compose(base, ms)
			b, okB := composer.Compose(base, shuffled)
			return okA == okB && a.Probability == b.Probability && a.PreCap == b.PreCap
		}
		require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 1000}))
	})
}

func TestComposer_Bound(t *testing.T) {
	composer := NewComposer(0.8, 0.12)

	tests := []struct {
		name        string
		base        float64
		multipliers []forecast.AppliedMultiplier
		want        float64
	}{
		{"below threshold is still reported", 0.10, factors(0.6, 0.5, 1.3), 0.039},
		{"capped", 0.35, factors(1.5, 1.8, 1.3, 1.4), 0.8},
		{"unusable base", math.NaN(), factors(1.5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, composer.Bound(tt.base, tt.multipliers), 1e-9)
		})
	}
}
