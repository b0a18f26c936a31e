package riskforecast

import "github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"

// AIActCalculator forecasts non-compliance with the EU AI Act. Organizations
// that do not use AI systems have no exposure in this domain.
type AIActCalculator struct {
	kit *Toolkit
}

// NewAIActCalculator creates the AI Act calculator
func NewAIActCalculator(kit *Toolkit) *AIActCalculator {
	return &AIActCalculator{kit: kit}
}

func (c *AIActCalculator) Domain() forecast.Domain {
	return forecast.DomainAIAct
}

func (c *AIActCalculator) Calculate(sc forecast.SignalContext) (forecast.RiskForecast, bool) {
	a, ok := c.Assess(sc)
	if !ok {
		return forecast.RiskForecast{}, false
	}
	return c.kit.Assemble(sc, a)
}

func (c *AIActCalculator) Assess(sc forecast.SignalContext) (Assessment, bool) {
	if !sc.UsesAISystems {
		return Assessment{}, false
	}

	defenses := defenseSet{kit: c.kit}
	defenses.add(DefenseAIRiskAssessment, sc.AIRiskAssessment)
	defenses.add(DefenseHumanOversight, sc.HumanOversight)

	multipliers := append(defenses.multipliers, c.kit.Region(sc))
	if sc.AutomatedDecisionMaking {
		multipliers = append(multipliers, forecast.AppliedMultiplier{
			Name:   "automated_decision_making",
			Factor: c.kit.tables.AutomatedDecision,
		})
	}

	return Assessment{
		Domain:          c.Domain(),
		Multipliers:     multipliers,
		MissingDefenses: defenses.missing,
	}, true
}
