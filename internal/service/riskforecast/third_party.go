package riskforecast

import "github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"

// ThirdPartyCalculator forecasts violations originating at processors and
// other vendors
type ThirdPartyCalculator struct {
	kit *Toolkit
}

// NewThirdPartyCalculator creates the third party calculator
func NewThirdPartyCalculator(kit *Toolkit) *ThirdPartyCalculator {
	return &ThirdPartyCalculator{kit: kit}
}

func (c *ThirdPartyCalculator) Domain() forecast.Domain {
	return forecast.DomainThirdParty
}

func (c *ThirdPartyCalculator) Calculate(sc forecast.SignalContext) (forecast.RiskForecast, bool) {
	a, ok := c.Assess(sc)
	if !ok {
		return forecast.RiskForecast{}, false
	}
	return c.kit.Assemble(sc, a)
}

func (c *ThirdPartyCalculator) Assess(sc forecast.SignalContext) (Assessment, bool) {
	defenses := defenseSet{kit: c.kit}
	defenses.add(DefenseVendorAssessments, sc.VendorAssessments)
	defenses.add(DefenseProcessingAgreements, sc.ProcessingAgreements)

	multipliers := append(defenses.multipliers, c.kit.Region(sc))
	// No uplift with the default tables; kept so a calibration can add one.
	if m, ok := c.kit.AIUsage(c.Domain(), sc); ok {
		multipliers = append(multipliers, m)
	}

	return Assessment{
		Domain:          c.Domain(),
		Multipliers:     multipliers,
		MissingDefenses: defenses.missing,
	}, true
}
