package riskforecast

import "github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"

// DataBreachCalculator forecasts a reportable personal data breach
type DataBreachCalculator struct {
	kit *Toolkit
}

// NewDataBreachCalculator creates the data breach calculator
func NewDataBreachCalculator(kit *Toolkit) *DataBreachCalculator {
	return &DataBreachCalculator{kit: kit}
}

func (c *DataBreachCalculator) Domain() forecast.Domain {
	return forecast.DomainDataBreach
}

func (c *DataBreachCalculator) Calculate(sc forecast.SignalContext) (forecast.RiskForecast, bool) {
	a, ok := c.Assess(sc)
	if !ok {
		return forecast.RiskForecast{}, false
	}
	return c.kit.Assemble(sc, a)
}

func (c *DataBreachCalculator) Assess(sc forecast.SignalContext) (Assessment, bool) {
	defenses := defenseSet{kit: c.kit}
	defenses.add(DefenseEncryptionAtRest, sc.EncryptionAtRest)
	defenses.add(DefenseSecurityMonitoring, sc.SecurityMonitoring)

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
