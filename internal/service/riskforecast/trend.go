package riskforecast

import (
	"math"
	"sort"
	"time"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

const hoursPerDay = 24.0

// TrendForecaster projects a domain's probability history forward with a
// least-squares line plus a per-quarter seasonal correction
type TrendForecaster struct {
	settings TrendSettings
}

// NewTrendForecaster creates a forecaster with the given tuning
func NewTrendForecaster(settings TrendSettings) TrendForecaster {
	return TrendForecaster{settings: settings}
}

// ClampHorizon bounds a horizon to the supported window
func (f TrendForecaster) ClampHorizon(days int) int {
	switch {
	case days < f.settings.MinHorizonDays:
		return f.settings.MinHorizonDays
	case days > f.settings.MaxHorizonDays:
		return f.settings.MaxHorizonDays
	default:
		return days
	}
}

// Project fits the history and returns a bounded adjustment factor. Short or
// degenerate histories produce a neutral projection.
func (f TrendForecaster) Project(history []forecast.HistorySnapshot, horizonDays int) forecast.TrendProjection {
	horizon := f.ClampHorizon(horizonDays)

	points := make([]forecast.HistorySnapshot, 0, len(history))
	incidents := 0
	for _, snap := range history {
		if math.IsNaN(snap.Probability) || math.IsInf(snap.Probability, 0) {
			continue
		}
		points = append(points, snap)
		if snap.IncidentOccurred {
			incidents++
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].RecordedAt.Before(points[j].RecordedAt)
	})

	neutral := forecast.NeutralTrend(horizon, len(points))
	neutral.IncidentsObserved = incidents
	if len(points) < f.settings.MinDataPoints {
		return neutral
	}

	origin := points[0].RecordedAt
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.RecordedAt.Sub(origin).Hours() / hoursPerDay
		ys[i] = p.Probability
	}

	slope, intercept, ok := leastSquares(xs, ys)
	if !ok {
		return neutral
	}

	n := float64(len(points))
	var meanY, ssTot, ssRes float64
	for _, y := range ys {
		meanY += y
	}
	meanY /= n

	residuals := make(map[int][]float64)
	for i := range xs {
		fitted := intercept + slope*xs[i]
		ssRes += (ys[i] - fitted) * (ys[i] - fitted)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
		q := quarterOf(points[i].RecordedAt)
		residuals[q] = append(residuals[q], ys[i]-fitted)
	}

	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	lastX := xs[len(xs)-1]
	lastFitted := intercept + slope*lastX
	target := points[len(points)-1].RecordedAt.AddDate(0, 0, horizon)

	seasonal := 0.0
	if rs := residuals[quarterOf(target)]; len(rs) >= f.settings.SeasonalMinObservations {
		seasonal = mean(rs)
	}

	projected := clamp(intercept+slope*(lastX+float64(horizon))+seasonal, 0, 1)

	factor := 1.0
	switch {
	case lastFitted > 0:
		factor = projected / lastFitted
	case projected > 0:
		factor = f.settings.MaxFactor
	}
	factor = clamp(factor, f.settings.MinFactor, f.settings.MaxFactor)

	volume := math.Min(1, n/float64(f.settings.FullConfidencePoints))

	return forecast.TrendProjection{
		Factor:               factor,
		Direction:            f.direction(factor),
		HorizonDays:          horizon,
		Confidence:           math.Max(0, rSquared) * volume,
		SlopePerDay:          slope,
		SeasonalAdjustment:   seasonal,
		ProjectedProbability: projected,
		DataPoints:           len(points),
		IncidentsObserved:    incidents,
		Sufficient:           true,
	}
}

func (f TrendForecaster) direction(factor float64) forecast.TrendDirection {
	switch {
	case factor >= 1+f.settings.StableBand:
		return forecast.TrendWorsening
	case factor <= 1-f.settings.StableBand:
		return forecast.TrendImproving
	default:
		return forecast.TrendStable
	}
}

// leastSquares fits y = intercept + slope*x. It reports false when all x
// values coincide.
func leastSquares(xs, ys []float64) (slope, intercept float64, ok bool) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator <= 0 || math.Abs(denominator) < 1e-12 {
		return 0, 0, false
	}

	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}

func quarterOf(t time.Time) int {
	return (int(t.UTC().Month()) - 1) / 3
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
