package forecast

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/values"
)

// RiskForecast is the forward-looking estimate for one domain. It is built
// once by a calculator and never modified afterwards.
type RiskForecast struct {
	Domain            Domain              `json:"domain"`
	Probability       float64             `json:"probability"`
	RiskLevel         RiskLevel           `json:"risk_level"`
	Exposure          ExposureLevel       `json:"exposure"`
	BaseProbability   float64             `json:"base_probability"`
	PreCapProbability float64             `json:"pre_cap_probability"`
	Capped            bool                `json:"capped"`
	HorizonDays       int                 `json:"horizon_days"`
	Multipliers       []AppliedMultiplier `json:"multipliers_applied"`
	CostOfInaction    CostOfInaction      `json:"cost_of_inaction"`
	Remediation       []RemediationStep   `json:"remediation_timeline"`
	Trend             *TrendProjection    `json:"trend,omitempty"`
}

// AppliedMultiplier records one factor that contributed to a probability
type AppliedMultiplier struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

// Remediation windows, in the order they appear in a timeline
const (
	WindowImmediate = "immediate"
	Window7Days     = "7d"
	Window30Days    = "30d"
	Window90Days    = "90d"
)

// RemediationStep groups the actions due within one window
type RemediationStep struct {
	Window  string   `json:"window"`
	Actions []string `json:"actions"`
}

// CostItem is one named component of the cost of inaction
type CostItem struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// CostOfInaction is the itemized monetary impact if a risk materializes.
// The total is always derived from the items.
type CostOfInaction struct {
	Currency string     `json:"currency"`
	Items    []CostItem `json:"items"`
}

// Total returns the sum of all items
func (c CostOfInaction) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// TotalMoney returns the total as Money in the breakdown's currency. It fails
// when the currency is not one costs can be reported in.
func (c CostOfInaction) TotalMoney() (values.Money, error) {
	return values.NewMoney(c.Total(), c.Currency)
}

// Component returns the amount of a named item
func (c CostOfInaction) Component(name string) (decimal.Decimal, bool) {
	for _, item := range c.Items {
		if item.Name == name {
			return item.Amount, true
		}
	}
	return decimal.Zero, false
}

// MarshalJSON adds the derived total and its display form to the encoded
// breakdown
func (c CostOfInaction) MarshalJSON() ([]byte, error) {
	total, err := c.TotalMoney()
	if err != nil {
		return nil, fmt.Errorf("encoding cost of inaction: %w", err)
	}

	type breakdown CostOfInaction
	return json.Marshal(struct {
		breakdown
		Total        decimal.Decimal `json:"total"`
		TotalDisplay string          `json:"total_display"`
	}{
		breakdown:    breakdown(c),
		Total:        total.Amount(),
		TotalDisplay: total.String(),
	})
}

// UnmarshalJSON ignores any encoded total; it is recomputed from the items
func (c *CostOfInaction) UnmarshalJSON(data []byte) error {
	type breakdown CostOfInaction
	var decoded breakdown
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = CostOfInaction(decoded)
	return nil
}
