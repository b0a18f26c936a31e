package riskforecast

import "github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"

// DocumentFraudCalculator forecasts losses from forged documents and
// identity fraud
type DocumentFraudCalculator struct {
	kit *Toolkit
}

// NewDocumentFraudCalculator creates the document fraud calculator
func NewDocumentFraudCalculator(kit *Toolkit) *DocumentFraudCalculator {
	return &DocumentFraudCalculator{kit: kit}
}

func (c *DocumentFraudCalculator) Domain() forecast.Domain {
	return forecast.DomainDocumentFraud
}

func (c *DocumentFraudCalculator) Calculate(sc forecast.SignalContext) (forecast.RiskForecast, bool) {
	a, ok := c.Assess(sc)
	if !ok {
		return forecast.RiskForecast{}, false
	}
	return c.kit.Assemble(sc, a)
}

func (c *DocumentFraudCalculator) Assess(sc forecast.SignalContext) (Assessment, bool) {
	defenses := defenseSet{kit: c.kit}
	defenses.add(DefenseIdentityVerification, sc.IdentityVerification)
	defenses.add(DefenseFraudMonitoring, sc.FraudMonitoring)

	multipliers := append(defenses.multipliers, c.kit.Region(sc))
	// Generated documents make verification harder for AI-driven onboarding.
	if m, ok := c.kit.AIUsage(c.Domain(), sc); ok {
		multipliers = append(multipliers, m)
	}

	return Assessment{
		Domain:          c.Domain(),
		Multipliers:     multipliers,
		MissingDefenses: defenses.missing,
	}, true
}
