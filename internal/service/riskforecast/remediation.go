package riskforecast

import "github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"

// RemediationPlanner builds the remediation timeline for a forecast
type RemediationPlanner struct {
	windows        map[forecast.RiskLevel][]string
	actions        map[forecast.Domain]map[string][]string
	defenseActions map[string]string
}

// NewRemediationPlanner creates a planner over the tables' remediation data
func NewRemediationPlanner(t Tables) RemediationPlanner {
	return RemediationPlanner{
		windows:        t.RemediationWindows,
		actions:        t.RemediationActions,
		defenseActions: t.DefenseActions,
	}
}

// Plan returns the steps for a domain at a risk level. Actions closing the
// missing defenses are scheduled in the earliest window. Windows without any
// action are left out.
func (p RemediationPlanner) Plan(d forecast.Domain, level forecast.RiskLevel, missing []string) []forecast.RemediationStep {
	windows := p.windows[level]
	steps := make([]forecast.RemediationStep, 0, len(windows))

	for i, window := range windows {
		var actions []string
		if i == 0 {
			for _, defense := range missing {
				if action, ok := p.defenseActions[defense]; ok {
					actions = append(actions, action)
				}
			}
		}
		actions = append(actions, p.actions[d][window]...)

		if len(actions) == 0 {
			continue
		}
		steps = append(steps, forecast.RemediationStep{Window: window, Actions: actions})
	}

	return steps
}
