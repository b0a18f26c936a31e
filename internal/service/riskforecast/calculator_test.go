package riskforecast

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/testutil/fixtures"
)

func newTestKit(t *testing.T) *Toolkit {
	t.Helper()
	kit, err := NewToolkit(DefaultTables())
	require.NoError(t, err)
	return kit
}

func calculatorFor(t *testing.T, kit *Toolkit, d forecast.Domain) Calculator {
	t.Helper()
	for _, c := range DefaultCalculators(kit) {
		if c.Domain() == d {
			return c
		}
	}
	t.Fatalf("no calculator for %s", d)
	return nil
}

// Domains whose probability is uplifted by AI usage with the default tables
var aiUpliftedDomains = []forecast.Domain{
	forecast.DomainLawfulProcessing,
	forecast.DomainDataBreach,
	forecast.DomainDocumentFraud,
}

func TestCalculators_HighExposureWithoutDefensesIsCapped(t *testing.T) {
	kit := newTestKit(t)

	for _, d := range aiUpliftedDomains {
		t.Run(string(d), func(t *testing.T) {
			sc := fixtures.NewContextBuilder().
				WithRegion("NL").
				WithAISystems(false).
				WithExposure(d, forecast.ExposureHigh).
				Build()

			result, ok := calculatorFor(t, kit, d).Calculate(sc)
			require.True(t, ok)

			assert.Equal(t, 0.8, result.Probability)
			assert.True(t, result.Capped)
			assert.InDelta(t, 0.35*1.5*1.8*1.3*1.4, result.PreCapProbability, 1e-9)
			assert.Equal(t, forecast.RiskLevelHigh, result.RiskLevel)
			assert.Equal(t, 0.35, result.BaseProbability)
			assert.Equal(t, forecast.ExposureHigh, result.Exposure)
		})
	}
}

func TestCalculators_LowExposureWithDefensesIsSuppressed(t *testing.T) {
	kit := newTestKit(t)

	for _, d := range aiUpliftedDomains {
		t.Run(string(d), func(t *testing.T) {
			sc := fixtures.NewContextBuilder().
				WithAISystems(false).
				WithExposure(d, forecast.ExposureLow).
				WithDefenses(d).
				Build()

			result, ok := calculatorFor(t, kit, d).Calculate(sc)
			assert.False(t, ok)
			assert.Equal(t, forecast.RiskForecast{}, result)
		})
	}
}

func TestCalculators_MediumExposureInStrictRegion(t *testing.T) {
	kit := newTestKit(t)

	for _, d := range []forecast.Domain{
		forecast.DomainLawfulProcessing,
		forecast.DomainDataBreach,
		forecast.DomainThirdParty,
		forecast.DomainDocumentFraud,
	} {
		t.Run(string(d), func(t *testing.T) {
			sc := fixtures.NewContextBuilder().
				WithRegion("NL").
				WithExposure(d, forecast.ExposureMedium).
				Build()

			result, ok := calculatorFor(t, kit, d).Calculate(sc)
			require.True(t, ok)

			assert.InDelta(t, 0.756, result.Probability, 1e-9)
			assert.False(t, result.Capped)
			assert.Equal(t, forecast.RiskLevelHigh, result.RiskLevel)
		})
	}
}

func TestDocumentFraudCalculator_AuditTrail(t *testing.T) {
	kit := newTestKit(t)
	sc := fixtures.NewContextBuilder().
		WithRegion("nl").
		WithAISystems(false).
		WithExposure(forecast.DomainDocumentFraud, forecast.ExposureHigh).
		Build()

	result, ok := NewDocumentFraudCalculator(kit).Calculate(sc)
	require.True(t, ok)

	assert.Equal(t, []forecast.AppliedMultiplier{
		{Name: "identity_verification_absent", Factor: 1.5},
		{Name: "fraud_monitoring_absent", Factor: 1.8},
		{Name: "region_NL", Factor: 1.4},
		{Name: "ai_usage", Factor: 1.3},
	}, result.Multipliers)

	assert.True(t, result.CostOfInaction.Total().Equal(decimal.NewFromInt(3700000)))
	assert.Equal(t, 30, result.HorizonDays)
	assert.Nil(t, result.Trend)

	require.NotEmpty(t, result.Remediation)
	assert.Equal(t, forecast.WindowImmediate, result.Remediation[0].Window)
	assert.Contains(t, result.Remediation[0].Actions, "Enable identity document verification")
	assert.Contains(t, result.Remediation[0].Actions, "Enable transaction fraud monitoring")
}

func TestCalculators_ZeroContext(t *testing.T) {
	kit := newTestKit(t)
	var sc forecast.SignalContext

	for _, c := range DefaultCalculators(kit) {
		t.Run(string(c.Domain()), func(t *testing.T) {
			var (
				result forecast.RiskForecast
				ok     bool
			)
			require.NotPanics(t, func() { result, ok = c.Calculate(sc) })

			if c.Domain() == forecast.DomainAIAct {
				assert.False(t, ok, "AI Act does not apply without AI systems")
				return
			}

			// Medium exposure with both defenses absent in the default region
			require.True(t, ok)
			assert.InDelta(t, 0.2*1.5*1.8, result.Probability, 1e-9)
			assert.Equal(t, forecast.ExposureMedium, result.Exposure)
			assert.Contains(t, result.Multipliers, forecast.AppliedMultiplier{Name: "region_default", Factor: 1.0})
		})
	}
}

func TestAIActCalculator(t *testing.T) {
	kit := newTestKit(t)
	calc := NewAIActCalculator(kit)

	tests := []struct {
		name     string
		sc       forecast.SignalContext
		wantOK   bool
		wantProb float64
	}{
		{
			name:   "not applicable without AI systems",
			sc:     fixtures.NewContextBuilder().WithExposure(forecast.DomainAIAct, forecast.ExposureHigh).Build(),
			wantOK: false,
		},
		{
			name: "automated decisions without safeguards",
			sc: fixtures.NewContextBuilder().
				WithAISystems(true).
				WithExposure(forecast.DomainAIAct, forecast.ExposureMedium).
				Build(),
			wantOK:   true,
			wantProb: 0.2 * 1.5 * 1.8 * 1.3,
		},
		{
			name: "safeguards in place",
			sc: fixtures.NewContextBuilder().
				WithAISystems(true).
				WithExposure(forecast.DomainAIAct, forecast.ExposureLow).
				WithDefenses(forecast.DomainAIAct).
				Build(),
			wantOK: false,
		},
		{
			name: "high exposure in Germany",
			sc: fixtures.NewContextBuilder().
				WithRegion("DE").
				WithAISystems(false).
				WithExposure(forecast.DomainAIAct, forecast.ExposureHigh).
				WithDefenses(forecast.DomainAIAct).
				Build(),
			wantOK:   true,
			wantProb: 0.35 * 0.6 * 0.5 * 1.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := calc.Calculate(tt.sc)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.wantProb, result.Probability, 1e-9)
			}
		})
	}
}

func TestThirdPartyCalculator_NoAIUplift(t *testing.T) {
	kit := newTestKit(t)
	sc := fixtures.NewContextBuilder().
		WithAISystems(true).
		WithExposure(forecast.DomainThirdParty, forecast.ExposureMedium).
		Build()

	result, ok := NewThirdPartyCalculator(kit).Calculate(sc)
	require.True(t, ok)

	for _, m := range result.Multipliers {
		assert.NotEqual(t, "ai_usage", m.Name)
	}
	assert.InDelta(t, 0.54, result.Probability, 1e-9)
}

func TestCalculators_TrendFromHistory(t *testing.T) {
	kit := newTestKit(t)
	calc := NewDataBreachCalculator(kit)

	rising := fixtures.LinearHistory(forecast.DomainDataBreach, trendStart, 7*day, 8, 0.20, 0.02)
	unrelated := fixtures.LinearHistory(forecast.DomainThirdParty, trendStart, 7*day, 8, 0.60, -0.05)

	base := fixtures.NewContextBuilder().WithExposure(forecast.DomainDataBreach, forecast.ExposureMedium)

	t.Run("sufficient history adds a trend multiplier", func(t *testing.T) {
		sc := base.Build().WithHistory(append(rising, unrelated...))

		result, ok := calc.Calculate(sc)
		require.True(t, ok)
		require.NotNil(t, result.Trend)

		assert.True(t, result.Trend.Sufficient)
		assert.Equal(t, forecast.TrendWorsening, result.Trend.Direction)
		assert.Equal(t, 8, result.Trend.DataPoints)

		last := result.Multipliers[len(result.Multipliers)-1]
		assert.Equal(t, "trend", last.Name)
		assert.Equal(t, result.Trend.Factor, last.Factor)
		assert.InDelta(t, 0.54*result.Trend.Factor, result.PreCapProbability, 1e-9)
	})

	t.Run("short history is reported but neutral", func(t *testing.T) {
		sc := base.Build().WithHistory(rising[:2])

		result, ok := calc.Calculate(sc)
		require.True(t, ok)
		require.NotNil(t, result.Trend)

		assert.False(t, result.Trend.Sufficient)
		for _, m := range result.Multipliers {
			assert.NotEqual(t, "trend", m.Name)
		}
		assert.InDelta(t, 0.54, result.Probability, 1e-9)
	})

	t.Run("history for other domains is ignored", func(t *testing.T) {
		sc := base.Build().WithHistory(unrelated)

		result, ok := calc.Calculate(sc)
		require.True(t, ok)
		assert.Nil(t, result.Trend)
	})
}

func TestCalculators_DoNotMutateContext(t *testing.T) {
	kit := newTestKit(t)
	history := fixtures.LinearHistory(forecast.DomainDataBreach, trendStart, 7*day, 5, 0.4, -0.02)
	// Reverse so the calculator has to sort
	history[0], history[4] = history[4], history[0]

	sc := fixtures.NewContextBuilder().
		WithRegion("FR").
		WithExposure(forecast.DomainDataBreach, forecast.ExposureHigh).
		WithHistory(history...).
		Build()
	snapshot := sc.WithHistory(sc.History)

	for _, c := range DefaultCalculators(kit) {
		c.Calculate(sc)
	}

	assert.Equal(t, snapshot, sc)
}

func TestToolkit_PostureIgnoresTrend(t *testing.T) {
	kit := newTestKit(t)
	falling := fixtures.LinearHistory(forecast.DomainDataBreach, trendStart, 7*day, 8, 0.30, -0.03)

	tests := []struct {
		name     string
		builder  *fixtures.ContextBuilder
		material bool
	}{
		{
			name:     "material domain",
			builder:  fixtures.NewContextBuilder().WithExposure(forecast.DomainDataBreach, forecast.ExposureMedium),
			material: true,
		},
		{
			name: "suppressed domain",
			builder: fixtures.NewContextBuilder().
				WithAISystems(false).
				WithExposure(forecast.DomainDataBreach, forecast.ExposureLow).
				WithDefenses(forecast.DomainDataBreach),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calc Assessor = NewDataBreachCalculator(kit)

			plain := tt.builder.Build()
			withHistory := plain.WithHistory(falling)

			a, ok := calc.Assess(plain)
			require.True(t, ok)
			b, ok := calc.Assess(withHistory)
			require.True(t, ok)

			want := kit.Posture(plain, a)
			assert.Greater(t, want, 0.0)
			assert.Equal(t, want, kit.Posture(withHistory, b))

			_, material := NewDataBreachCalculator(kit).Calculate(withHistory)
			assert.Equal(t, tt.material, material)
		})
	}
}
