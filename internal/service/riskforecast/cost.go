package riskforecast

import (
	"github.com/shopspring/decimal"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// CostEstimator looks up the cost of inaction for a domain and severity.
// Amounts come from the table and are scaled by organization size; the
// forecast probability plays no part.
type CostEstimator struct {
	currency  string
	costs     map[forecast.Domain]map[forecast.RiskLevel][]forecast.CostItem
	sizeScale map[forecast.OrganizationSize]decimal.Decimal
}

// NewCostEstimator creates an estimator over the tables' cost data
func NewCostEstimator(t Tables) CostEstimator {
	return CostEstimator{
		currency:  t.Currency,
		costs:     t.Costs,
		sizeScale: t.SizeScale,
	}
}

// Estimate returns the itemized breakdown. Unknown domains or levels yield an
// empty breakdown in the configured currency.
func (e CostEstimator) Estimate(d forecast.Domain, level forecast.RiskLevel, sc forecast.SignalContext) forecast.CostOfInaction {
	scale, ok := e.sizeScale[sc.Size()]
	if !ok {
		scale = decimal.NewFromInt(1)
	}

	table := e.costs[d][level]
	items := make([]forecast.CostItem, 0, len(table))
	for _, item := range table {
		items = append(items, forecast.CostItem{
			Name:   item.Name,
			Amount: item.Amount.Mul(scale).Round(2),
		})
	}

	return forecast.CostOfInaction{
		Currency: e.currency,
		Items:    items,
	}
}
