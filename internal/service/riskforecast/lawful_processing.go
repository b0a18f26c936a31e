package riskforecast

import "github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"

// LawfulProcessingCalculator forecasts processing without a valid lawful
// basis (GDPR Art. 6 and 7)
type LawfulProcessingCalculator struct {
	kit *Toolkit
}

// NewLawfulProcessingCalculator creates the lawful processing calculator
func NewLawfulProcessingCalculator(kit *Toolkit) *LawfulProcessingCalculator {
	return &LawfulProcessingCalculator{kit: kit}
}

func (c *LawfulProcessingCalculator) Domain() forecast.Domain {
	return forecast.DomainLawfulProcessing
}

func (c *LawfulProcessingCalculator) Calculate(sc forecast.SignalContext) (forecast.RiskForecast, bool) {
	a, ok := c.Assess(sc)
	if !ok {
		return forecast.RiskForecast{}, false
	}
	return c.kit.Assemble(sc, a)
}

func (c *LawfulProcessingCalculator) Assess(sc forecast.SignalContext) (Assessment, bool) {
	defenses := defenseSet{kit: c.kit}
	defenses.add(DefenseConsentManagement, sc.ConsentManagement)
	defenses.add(DefenseProcessingRecords, sc.ProcessingRecords)

	multipliers := append(defenses.multipliers, c.kit.Region(sc))
	if m, ok := c.kit.AIUsage(c.Domain(), sc); ok {
		multipliers = append(multipliers, m)
	}

	return Assessment{
		Domain:          c.Domain(),
		Multipliers:     multipliers,
		MissingDefenses: defenses.missing,
	}, true
}
