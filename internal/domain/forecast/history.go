package forecast

import "time"

// HistorySnapshot is one prior forecast observation for a tenant and domain.
// Snapshots are owned by the history store; the engine treats them as
// read-only input.
type HistorySnapshot struct {
	Domain           Domain    `json:"domain"`
	RecordedAt       time.Time `json:"recorded_at"`
	Probability      float64   `json:"probability"`
	IncidentOccurred bool      `json:"incident_occurred"`
}

// TrendDirection summarizes where a domain's probability is heading
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendWorsening TrendDirection = "worsening"
)

// TrendProjection is the outcome of projecting a history series forward
type TrendProjection struct {
	// Factor is folded into the multiplier list; 1.0 is neutral.
	Factor      float64        `json:"factor"`
	Direction   TrendDirection `json:"direction"`
	HorizonDays int            `json:"horizon_days"`
	Confidence  float64        `json:"confidence"`
	// SlopePerDay is the fitted change in probability per day.
	SlopePerDay          float64 `json:"slope_per_day"`
	SeasonalAdjustment   float64 `json:"seasonal_adjustment"`
	ProjectedProbability float64 `json:"projected_probability"`
	DataPoints           int     `json:"data_points"`
	IncidentsObserved    int     `json:"incidents_observed"`
	Sufficient           bool    `json:"sufficient"`
}

// NeutralTrend returns a projection that leaves probabilities unchanged
func NeutralTrend(horizonDays, dataPoints int) TrendProjection {
	return TrendProjection{
		Factor:      1.0,
		Direction:   TrendStable,
		HorizonDays: horizonDays,
		DataPoints:  dataPoints,
	}
}
