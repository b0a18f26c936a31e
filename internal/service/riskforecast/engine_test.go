package riskforecast

import (
	"sync"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/testutil/fixtures"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultTables(), zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return engine
}

// fixedCalculator always returns the same probability for its domain
type fixedCalculator struct {
	domain      forecast.Domain
	probability float64
}

func (c fixedCalculator) Domain() forecast.Domain { return c.domain }

func (c fixedCalculator) Calculate(forecast.SignalContext) (forecast.RiskForecast, bool) {
	if c.probability <= 0 {
		return forecast.RiskForecast{}, false
	}
	return forecast.RiskForecast{Domain: c.domain, Probability: c.probability}, true
}

func probabilities(forecasts []forecast.RiskForecast) []float64 {
	out := make([]float64, len(forecasts))
	for i, f := range forecasts {
		out[i] = f.Probability
	}
	return out
}

func TestEngine_TwoMaterialDomains(t *testing.T) {
	engine := newTestEngine(t)

	forecasts := engine.Forecast(fixtures.TwoMaterialDomainsContext())

	require.Len(t, forecasts, 2)
	assert.Equal(t, forecast.DomainDocumentFraud, forecasts[0].Domain)
	assert.Equal(t, 0.8, forecasts[0].Probability)
	assert.Equal(t, forecast.DomainThirdParty, forecasts[1].Domain)
	assert.InDelta(t, 0.756, forecasts[1].Probability, 1e-9)
}

func TestEngine_Evaluate(t *testing.T) {
	engine := newTestEngine(t)

	report := engine.Evaluate(fixtures.TwoMaterialDomainsContext())

	assert.Equal(t, 5, report.Evaluated)
	assert.Len(t, report.Forecasts, 2)
	assert.Equal(t, []forecast.Domain{
		forecast.DomainLawfulProcessing,
		forecast.DomainAIAct,
		forecast.DomainDataBreach,
	}, report.NotMaterial)

	// ai_act does not apply without AI systems, so it has no posture
	domains := make([]forecast.Domain, 0, len(report.Postures))
	for _, p := range report.Postures {
		domains = append(domains, p.Domain)
	}
	assert.Equal(t, []forecast.Domain{
		forecast.DomainLawfulProcessing,
		forecast.DomainDataBreach,
		forecast.DomainThirdParty,
		forecast.DomainDocumentFraud,
	}, domains)
	assert.InDelta(t, 0.042, report.Postures[0].Probability, 1e-9)
	assert.InDelta(t, 0.8, report.Postures[3].Probability, 1e-9)
}

func TestEngine_PostureFallsBackForPlainCalculators(t *testing.T) {
	engine := newTestEngine(t,
		WithoutBuiltinCalculators(),
		WithCalculators(
			fixedCalculator{domain: "export_controls", probability: 0.4},
			fixedCalculator{domain: "sanctions", probability: 0},
		),
	)

	report := engine.Evaluate(forecast.SignalContext{})

	require.Len(t, report.Postures, 1)
	assert.Equal(t, forecast.Domain("export_controls"), report.Postures[0].Domain)
	assert.Equal(t, 0.4, report.Postures[0].Probability)
}

func TestEngine_TieBreakKeepsRegistrationOrder(t *testing.T) {
	engine := newTestEngine(t,
		WithoutBuiltinCalculators(),
		WithCalculators(
			fixedCalculator{domain: "c", probability: 0.3},
			fixedCalculator{domain: "a", probability: 0.5},
			fixedCalculator{domain: "b", probability: 0.3},
			fixedCalculator{domain: "d", probability: 0},
		),
	)

	for i := 0; i < 20; i++ {
		report := engine.Evaluate(forecast.SignalContext{})

		require.Len(t, report.Forecasts, 3)
		assert.Equal(t, forecast.Domain("a"), report.Forecasts[0].Domain)
		assert.Equal(t, forecast.Domain("c"), report.Forecasts[1].Domain)
		assert.Equal(t, forecast.Domain("b"), report.Forecasts[2].Domain)
		assert.Equal(t, []forecast.Domain{"d"}, report.NotMaterial)
	}
}

func TestEngine_Register(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.Register(NewDataBreachCalculator(engine.Toolkit()))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	assert.Error(t, engine.Register(nil))

	require.NoError(t, engine.Register(fixedCalculator{domain: "export_controls", probability: 0.9}))
	assert.Equal(t, append(forecast.AllDomains(), "export_controls"), engine.Domains())

	forecasts := engine.Forecast(forecast.SignalContext{})
	assert.Equal(t, forecast.Domain("export_controls"), forecasts[0].Domain)
}

func TestEngine_DuplicateOptionCalculator(t *testing.T) {
	_, err := NewEngine(DefaultTables(), nil, WithCalculators(fixedCalculator{domain: forecast.DomainAIAct}))
	assert.Error(t, err)
}

func TestEngine_InvalidTables(t *testing.T) {
	tables := DefaultTables()
	tables.ProbabilityCap = 0.1

	_, err := NewEngine(tables, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidTables)
}

func TestEngine_TablesAreIsolated(t *testing.T) {
	tables := DefaultTables()
	engine, err := NewEngine(tables, nil)
	require.NoError(t, err)

	tables.RegionMultipliers["NL"] = 0.1
	copied := engine.Tables()
	copied.RegionMultipliers["NL"] = 0.2

	assert.Equal(t, 1.4, engine.Tables().RegionMultipliers["NL"])
	assert.InDelta(t, 0.756, engine.Forecast(fixtures.TwoMaterialDomainsContext())[1].Probability, 1e-9)
}

func TestEngine_ParallelMatchesSequential(t *testing.T) {
	sequential := newTestEngine(t)
	parallel := newTestEngine(t, WithParallelism(3))

	contexts := []forecast.SignalContext{
		{},
		fixtures.TwoMaterialDomainsContext(),
		fixtures.NewContextBuilder().WithRegion("DE").WithAISystems(true).WithExposureAll(forecast.ExposureHigh).Build(),
		fixtures.NewContextBuilder().WithExposureAll(forecast.ExposureLow).WithDefenses(forecast.AllDomains()...).Build(),
	}

	for _, sc := range contexts {
		assert.Equal(t, sequential.Evaluate(sc), parallel.Evaluate(sc))
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	engine := newTestEngine(t, WithParallelism(2))
	sc := fixtures.TwoMaterialDomainsContext()
	expected := engine.Forecast(sc)

	var wg sync.WaitGroup
	results := make([][]forecast.RiskForecast, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = engine.Forecast(sc)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, expected, r)
	}
}

func TestEngine_AllFieldsUnset(t *testing.T) {
	engine := newTestEngine(t)

	var forecasts []forecast.RiskForecast
	require.NotPanics(t, func() { forecasts = engine.Forecast(forecast.SignalContext{}) })

	// Every domain except the AI Act falls back to medium exposure without
	// defenses.
	require.Len(t, forecasts, 4)
	for _, f := range forecasts {
		assert.InDelta(t, 0.54, f.Probability, 1e-9)
		assert.Equal(t, forecast.RiskLevelHigh, f.RiskLevel)
	}
	assert.Equal(t, []forecast.Domain{
		forecast.DomainLawfulProcessing,
		forecast.DomainDataBreach,
		forecast.DomainThirdParty,
		forecast.DomainDocumentFraud,
	}, []forecast.Domain{forecasts[0].Domain, forecasts[1].Domain, forecasts[2].Domain, forecasts[3].Domain})
}

// randomContext maps quick-generated primitives onto a SignalContext
func randomContext(flags uint16, exposures [5]uint8, region, size uint8) forecast.SignalContext {
	levels := []forecast.ExposureLevel{"", forecast.ExposureLow, forecast.ExposureMedium, forecast.ExposureHigh, "bogus"}
	regions := []string{"", "NL", "de", "FR", "IT", "ES", "IE", "GB", "US", "??"}
	sizes := []forecast.OrganizationSize{"", forecast.OrganizationSmall, forecast.OrganizationMedium, forecast.OrganizationLarge, forecast.OrganizationEnterprise}

	exposure := make(map[forecast.Domain]forecast.ExposureLevel)
	for i, d := range forecast.AllDomains() {
		if level := levels[int(exposures[i])%len(levels)]; level != "" {
			exposure[d] = level
		}
	}

	bit := func(n uint) bool { return flags&(1<<n) != 0 }

	return forecast.SignalContext{
		Region:                  regions[int(region)%len(regions)],
		Exposure:                exposure,
		OrganizationSize:        sizes[int(size)%len(sizes)],
		UsesAISystems:           bit(0),
		AutomatedDecisionMaking: bit(1),
		ConsentManagement:       bit(2),
		ProcessingRecords:       bit(3),
		AIRiskAssessment:        bit(4),
		HumanOversight:          bit(5),
		EncryptionAtRest:        bit(6),
		SecurityMonitoring:      bit(7),
		VendorAssessments:       bit(8),
		ProcessingAgreements:    bit(9),
		IdentityVerification:    bit(10),
		FraudMonitoring:         bit(11),
	}
}

func TestEngine_Properties(t *testing.T) {
	engine, err := NewEngine(DefaultTables(), nil)
	require.NoError(t, err)
	config := &quick.Config{MaxCount: 500}

	t.Run("probabilities stay within [threshold, cap]", func(t *testing.T) {
		property := func(flags uint16, exposures [5]uint8, region, size uint8) bool {
			for _, f := range engine.Forecast(randomContext(flags, exposures, region, size)) {
				if f.Probability < 0.12 || f.Probability > 0.8 {
					return false
				}
				if f.PreCapProbability < 0.12 {
					return false
				}
			}
			return true
		}
		require.NoError(t, quick.Check(property, config))
	})

	t.Run("output is sorted by probability", func(t *testing.T) {
		property := func(flags uint16, exposures [5]uint8, region, size uint8) bool {
			ps := probabilities(engine.Forecast(randomContext(flags, exposures, region, size)))
			for i := 1; i < len(ps); i++ {
				if ps[i] > ps[i-1] {
					return false
				}
			}
			return true
		}
		require.NoError(t, quick.Check(property, config))
	})

	t.Run("repeated calls are identical", func(t *testing.T) {
		property := func(flags uint16, exposures [5]uint8, region, size uint8) bool {
			sc := randomContext(flags, exposures, region, size)
			first := engine.Evaluate(sc)
			second := engine.Evaluate(sc)
			return assert.ObjectsAreEqual(first, second)
		}
		require.NoError(t, quick.Check(property, config))
	})

	t.Run("cost total equals the sum of its items", func(t *testing.T) {
		property := func(flags uint16, exposures [5]uint8, region, size uint8) bool {
			for _, f := range engine.Forecast(randomContext(flags, exposures, region, size)) {
				sum := f.CostOfInaction.Items[0].Amount
				for _, item := range f.CostOfInaction.Items[1:] {
					sum = sum.Add(item.Amount)
				}
				if !sum.Equal(f.CostOfInaction.Total()) {
					return false
				}
			}
			return true
		}
		require.NoError(t, quick.Check(property, config))
	})

	t.Run("every forecast explains its probability", func(t *testing.T) {
		property := func(flags uint16, exposures [5]uint8, region, size uint8) bool {
			for _, f := range engine.Forecast(randomContext(flags, exposures, region, size)) {
				product := f.BaseProbability
				for _, m := range f.Multipliers {
					product *= m.Factor
				}
				if diff := product - f.PreCapProbability; diff > 1e-9 || diff < -1e-9 {
					return false
				}
				if len(f.Remediation) == 0 {
					return false
				}
			}
			return true
		}
		require.NoError(t, quick.Check(property, config))
	})
}
