package riskforecast

import (
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// Calculator produces the forecast for a single risk domain.
//
// Calculate returns false when the risk is not currently material. That is
// not a failure: implementations must be pure and must not panic on any
// context, including the zero value.
type Calculator interface {
	Domain() forecast.Domain
	Calculate(sc forecast.SignalContext) (forecast.RiskForecast, bool)
}

// Assessor is implemented by calculators built on a Toolkit. Assess returns
// the multipliers Calculate would compose, or false when the domain does not
// apply to the context at all.
type Assessor interface {
	Assess(sc forecast.SignalContext) (Assessment, bool)
}

// Toolkit bundles the validated tables with the shared utilities that every
// calculator composes with. It is immutable once built.
type Toolkit struct {
	tables      Tables
	composer    Composer
	costs       CostEstimator
	remediation RemediationPlanner
	trend       TrendForecaster
}

// NewToolkit validates the tables and builds the shared utilities over a
// private copy of them
func NewToolkit(tables Tables) (*Toolkit, error) {
	if err := tables.Validate(); err != nil {
		return nil, err
	}

	t := tables.Clone()
	return &Toolkit{
		tables:      t,
		composer:    NewComposer(t.ProbabilityCap, t.SuppressionThreshold),
		costs:       NewCostEstimator(t),
		remediation: NewRemediationPlanner(t),
		trend:       NewTrendForecaster(t.Trend),
	}, nil
}

// Tables returns a copy of the active calibration
func (k *Toolkit) Tables() Tables {
	return k.tables.Clone()
}

// Composer returns the shared multiplier composer
func (k *Toolkit) Composer() Composer { return k.composer }

// Costs returns the shared cost estimator
func (k *Toolkit) Costs() CostEstimator { return k.costs }

// Trend returns the shared trend forecaster
func (k *Toolkit) Trend() TrendForecaster { return k.trend }

// Defense returns the multiplier for a capability together with a flag that
// is true when the capability is missing
func (k *Toolkit) Defense(name string, present bool) (forecast.AppliedMultiplier, bool) {
	factor := k.tables.Defenses[name]
	if present {
		return forecast.AppliedMultiplier{Name: name + "_present", Factor: factor.Present}, false
	}
	return forecast.AppliedMultiplier{Name: name + "_absent", Factor: factor.Absent}, true
}

// Region returns the regional multiplier for the context
func (k *Toolkit) Region(sc forecast.SignalContext) forecast.AppliedMultiplier {
	code := sc.RegionCode()
	return forecast.AppliedMultiplier{Name: "region_" + code, Factor: k.tables.RegionFor(code)}
}

// Assessment collects the inputs a calculator hands to Assemble
type Assessment struct {
	Domain forecast.Domain
	// Multipliers in application order; defenses first by convention.
	Multipliers []forecast.AppliedMultiplier
	// MissingDefenses names the capabilities whose absence was penalized.
	MissingDefenses []string
}

// Assemble resolves exposure and base probability, composes the probability
// and fills in costs and remediation. Any domain history attaches a trend
// projection; its factor is applied only when the projection is sufficient.
// It returns false when the composed probability is not material.
func (k *Toolkit) Assemble(sc forecast.SignalContext, a Assessment) (forecast.RiskForecast, bool) {
	exposure := k.tables.ExposureFor(a.Domain, sc)
	base := k.tables.BaseFor(a.Domain, exposure)

	multipliers := append([]forecast.AppliedMultiplier(nil), a.Multipliers...)

	var trend *forecast.TrendProjection
	if history := sc.HistoryFor(a.Domain); len(history) > 0 {
		projection := k.trend.Project(history, k.tables.HorizonDays)
		trend = &projection
		if projection.Sufficient {
			multipliers = append(multipliers, forecast.AppliedMultiplier{Name: "trend", Factor: projection.Factor})
		}
	}

	composition, material := k.composer.Compose(base, multipliers)
	if !material {
		return forecast.RiskForecast{}, false
	}

	level := k.tables.LevelFor(composition.Probability)

	return forecast.RiskForecast{
		Domain:            a.Domain,
		Probability:       composition.Probability,
		RiskLevel:         level,
		Exposure:          exposure,
		BaseProbability:   composition.Base,
		PreCapProbability: composition.PreCap,
		Capped:            composition.Capped,
		HorizonDays:       k.tables.HorizonDays,
		Multipliers:       composition.Multipliers,
		CostOfInaction:    k.costs.Estimate(a.Domain, level, sc),
		Remediation:       k.remediation.Plan(a.Domain, level, a.MissingDefenses),
		Trend:             trend,
	}, true
}

// Posture returns the probability an assessment composes to from the
// context alone. The trend is left out and suppressed values are kept, so a
// recorded posture can later be projected without feeding back on itself.
func (k *Toolkit) Posture(sc forecast.SignalContext, a Assessment) float64 {
	base := k.tables.BaseFor(a.Domain, k.tables.ExposureFor(a.Domain, sc))
	return k.composer.Bound(base, a.Multipliers)
}

// defenseSet accumulates defense multipliers and the capabilities found
// missing
type defenseSet struct {
	kit         *Toolkit
	multipliers []forecast.AppliedMultiplier
	missing     []string
}

func (s *defenseSet) add(name string, present bool) {
	m, missing := s.kit.Defense(name, present)
	s.multipliers = append(s.multipliers, m)
	if missing {
		s.missing = append(s.missing, name)
	}
}

// DefaultCalculators returns the built-in calculators in canonical domain
// order
func DefaultCalculators(kit *Toolkit) []Calculator {
	return []Calculator{
		NewLawfulProcessingCalculator(kit),
		NewAIActCalculator(kit),
		NewDataBreachCalculator(kit),
		NewThirdPartyCalculator(kit),
		NewDocumentFraudCalculator(kit),
	}
}

// AIUsage returns the contextual uplift for AI-system usage. It reports false
// when the context does not use AI systems or the domain has no uplift.
func (k *Toolkit) AIUsage(d forecast.Domain, sc forecast.SignalContext) (forecast.AppliedMultiplier, bool) {
	if !sc.UsesAISystems {
		return forecast.AppliedMultiplier{}, false
	}
	factor, ok := k.tables.AIUplift[d]
	if !ok || factor == 1.0 {
		return forecast.AppliedMultiplier{}, false
	}
	return forecast.AppliedMultiplier{Name: "ai_usage", Factor: factor}, true
}
