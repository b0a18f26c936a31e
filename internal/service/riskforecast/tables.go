package riskforecast

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/values"
)

// Defense capability keys. They name both the lookup in Tables.Defenses and
// the entry recorded in a forecast's multiplier trail.
const (
	DefenseConsentManagement    = "consent_management"
	DefenseProcessingRecords    = "processing_records"
	DefenseAIRiskAssessment     = "ai_risk_assessment"
	DefenseHumanOversight       = "human_oversight"
	DefenseEncryptionAtRest     = "encryption_at_rest"
	DefenseSecurityMonitoring   = "security_monitoring"
	DefenseVendorAssessments    = "vendor_assessments"
	DefenseProcessingAgreements = "processing_agreements"
	DefenseIdentityVerification = "identity_verification"
	DefenseFraudMonitoring      = "fraud_monitoring"
)

// DefenseFactor holds the multipliers applied when a capability is present
// or absent
type DefenseFactor struct {
	Present float64 `json:"present"`
	Absent  float64 `json:"absent"`
}

// RiskThresholds maps a probability onto a risk level
type RiskThresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// TrendSettings tunes the short-horizon trend projection
type TrendSettings struct {
	MinDataPoints           int     `json:"min_data_points"`
	MinHorizonDays          int     `json:"min_horizon_days"`
	MaxHorizonDays          int     `json:"max_horizon_days"`
	MinFactor               float64 `json:"min_factor"`
	MaxFactor               float64 `json:"max_factor"`
	StableBand              float64 `json:"stable_band"`
	FullConfidencePoints    int     `json:"full_confidence_points"`
	SeasonalMinObservations int     `json:"seasonal_min_observations"`
}

// Tables is the calibration every calculator reads from. An Engine keeps its
// own deep copy, so callers may reuse or modify the value they passed in.
type Tables struct {
	ProbabilityCap       float64 `json:"probability_cap"`
	SuppressionThreshold float64 `json:"suppression_threshold"`
	HorizonDays          int     `json:"horizon_days"`
	Currency             string  `json:"currency"`

	BaseProbability map[forecast.Domain]map[forecast.ExposureLevel]float64 `json:"base_probability"`
	DefaultExposure map[forecast.Domain]forecast.ExposureLevel             `json:"default_exposure"`

	Defenses          map[string]DefenseFactor    `json:"defenses"`
	RegionMultipliers map[string]float64          `json:"region_multipliers"`
	AIUplift          map[forecast.Domain]float64 `json:"ai_uplift"`
	AutomatedDecision float64                     `json:"automated_decision_uplift"`

	RiskThresholds RiskThresholds `json:"risk_thresholds"`

	Costs     map[forecast.Domain]map[forecast.RiskLevel][]forecast.CostItem `json:"costs"`
	SizeScale map[forecast.OrganizationSize]decimal.Decimal                  `json:"size_scale"`

	RemediationWindows map[forecast.RiskLevel][]string         `json:"remediation_windows"`
	RemediationActions map[forecast.Domain]map[string][]string `json:"remediation_actions"`
	DefenseActions     map[string]string                       `json:"defense_actions"`

	Trend TrendSettings `json:"trend"`
}

// DefaultTables returns the documented calibration
func DefaultTables() Tables {
	base := map[forecast.ExposureLevel]float64{
		forecast.ExposureLow:    0.10,
		forecast.ExposureMedium: 0.20,
		forecast.ExposureHigh:   0.35,
	}

	t := Tables{
		ProbabilityCap:       0.8,
		SuppressionThreshold: 0.12,
		HorizonDays:          30,
		Currency:             values.EUR,

		BaseProbability: make(map[forecast.Domain]map[forecast.ExposureLevel]float64),
		DefaultExposure: make(map[forecast.Domain]forecast.ExposureLevel),

		Defenses: map[string]DefenseFactor{
			DefenseConsentManagement:    {Present: 0.6, Absent: 1.5},
			DefenseProcessingRecords:    {Present: 0.5, Absent: 1.8},
			DefenseAIRiskAssessment:     {Present: 0.6, Absent: 1.5},
			DefenseHumanOversight:       {Present: 0.5, Absent: 1.8},
			DefenseEncryptionAtRest:     {Present: 0.6, Absent: 1.5},
			DefenseSecurityMonitoring:   {Present: 0.5, Absent: 1.8},
			DefenseVendorAssessments:    {Present: 0.6, Absent: 1.5},
			DefenseProcessingAgreements: {Present: 0.5, Absent: 1.8},
			DefenseIdentityVerification: {Present: 0.6, Absent: 1.5},
			DefenseFraudMonitoring:      {Present: 0.5, Absent: 1.8},
		},
		RegionMultipliers: map[string]float64{
			"NL":                   1.4,
			"DE":                   1.3,
			"FR":                   1.25,
			"IT":                   1.2,
			"ES":                   1.2,
			"IE":                   1.15,
			"GB":                   1.1,
			forecast.DefaultRegion: 1.0,
		},
		AIUplift: map[forecast.Domain]float64{
			forecast.DomainLawfulProcessing: 1.3,
			forecast.DomainDataBreach:       1.3,
			forecast.DomainDocumentFraud:    1.3,
			forecast.DomainThirdParty:       1.0,
		},
		AutomatedDecision: 1.3,

		RiskThresholds: RiskThresholds{Medium: 0.25, High: 0.5},

		Costs: map[forecast.Domain]map[forecast.RiskLevel][]forecast.CostItem{
			forecast.DomainLawfulProcessing: costLevels(
				costItem("regulatory_fines", 2000000),
				costItem("legal_costs", 250000),
				costItem("data_subject_claims", 400000),
				costItem("remediation_program", 200000),
				costItem("reputational_damage", 1000000),
			),
			forecast.DomainAIAct: costLevels(
				costItem("regulatory_fines", 3000000),
				costItem("conformity_assessment", 300000),
				costItem("system_withdrawal", 750000),
				costItem("legal_costs", 200000),
				costItem("reputational_damage", 1500000),
			),
			forecast.DomainDataBreach: costLevels(
				costItem("regulatory_fines", 1500000),
				costItem("incident_response", 600000),
				costItem("notification_costs", 150000),
				costItem("litigation", 800000),
				costItem("reputational_damage", 2000000),
			),
			forecast.DomainThirdParty: costLevels(
				costItem("regulatory_fines", 750000),
				costItem("contract_renegotiation", 120000),
				costItem("vendor_audit", 80000),
				costItem("incident_response", 300000),
				costItem("reputational_damage", 600000),
			),
			forecast.DomainDocumentFraud: costLevels(
				costItem("direct_losses", 50000),
				costItem("regulatory_fines", 1000000),
				costItem("incident_response", 500000),
				costItem("reputational_damage", 2000000),
				costItem("remediation_systems", 150000),
			),
		},
		SizeScale: map[forecast.OrganizationSize]decimal.Decimal{
			forecast.OrganizationSmall:      decimal.NewFromFloat(0.5),
			forecast.OrganizationMedium:     decimal.NewFromInt(1),
			forecast.OrganizationLarge:      decimal.NewFromInt(2),
			forecast.OrganizationEnterprise: decimal.NewFromInt(4),
		},

		RemediationWindows: map[forecast.RiskLevel][]string{
			forecast.RiskLevelHigh:   {forecast.WindowImmediate, forecast.Window7Days, forecast.Window30Days, forecast.Window90Days},
			forecast.RiskLevelMedium: {forecast.Window7Days, forecast.Window30Days, forecast.Window90Days},
			forecast.RiskLevelLow:    {forecast.Window30Days, forecast.Window90Days},
		},
		RemediationActions: map[forecast.Domain]map[string][]string{
			forecast.DomainLawfulProcessing: {
				forecast.WindowImmediate: {"Suspend processing activities without a documented lawful basis"},
				forecast.Window7Days:     {"Map processing activities to their lawful basis"},
				forecast.Window30Days:    {"Complete the records of processing activities", "Review consent capture and withdrawal flows"},
				forecast.Window90Days:    {"Schedule a periodic lawful-basis review"},
			},
			forecast.DomainAIAct: {
				forecast.WindowImmediate: {"Inventory AI systems in production and flag high-risk use cases"},
				forecast.Window7Days:     {"Assign accountable owners for each AI system"},
				forecast.Window30Days:    {"Run a conformity gap analysis against AI Act obligations", "Document human oversight procedures"},
				forecast.Window90Days:    {"Establish post-market monitoring for AI systems"},
			},
			forecast.DomainDataBreach: {
				forecast.WindowImmediate: {"Rotate exposed credentials and restrict access to sensitive stores"},
				forecast.Window7Days:     {"Verify the incident response and 72-hour notification runbook"},
				forecast.Window30Days:    {"Close high-severity vulnerability findings", "Test backup restoration"},
				forecast.Window90Days:    {"Run a breach simulation exercise"},
			},
			forecast.DomainThirdParty: {
				forecast.WindowImmediate: {"Identify vendors with access to personal data"},
				forecast.Window7Days:     {"Collect missing data processing agreements from critical vendors"},
				forecast.Window30Days:    {"Review sub-processor lists and transfer mechanisms"},
				forecast.Window90Days:    {"Introduce annual vendor reassessment"},
			},
			forecast.DomainDocumentFraud: {
				forecast.WindowImmediate: {"Hold high-value onboarding cases pending manual document review"},
				forecast.Window7Days:     {"Tighten document authenticity checks for new customers"},
				forecast.Window30Days:    {"Tune fraud scoring rules on recent cases", "Train onboarding staff on forged document indicators"},
				forecast.Window90Days:    {"Evaluate biometric liveness verification"},
			},
		},
		DefenseActions: map[string]string{
			DefenseConsentManagement:    "Deploy a consent management platform",
			DefenseProcessingRecords:    "Create records of processing activities",
			DefenseAIRiskAssessment:     "Perform an AI system risk assessment",
			DefenseHumanOversight:       "Introduce human oversight for automated decisions",
			DefenseEncryptionAtRest:     "Enable encryption at rest for personal data stores",
			DefenseSecurityMonitoring:   "Enable continuous security monitoring",
			DefenseVendorAssessments:    "Start vendor security assessments",
			DefenseProcessingAgreements: "Sign data processing agreements with processors",
			DefenseIdentityVerification: "Enable identity document verification",
			DefenseFraudMonitoring:      "Enable transaction fraud monitoring",
		},

		Trend: TrendSettings{
			MinDataPoints:           3,
			MinHorizonDays:          30,
			MaxHorizonDays:          90,
			MinFactor:               0.75,
			MaxFactor:               1.5,
			StableBand:              0.05,
			FullConfidencePoints:    12,
			SeasonalMinObservations: 2,
		},
	}

	for _, d := range forecast.AllDomains() {
		t.BaseProbability[d] = cloneMap(base)
		t.DefaultExposure[d] = forecast.ExposureMedium
	}

	return t
}

// Clone returns a deep copy of the tables
func (t Tables) Clone() Tables {
	out := t

	out.BaseProbability = make(map[forecast.Domain]map[forecast.ExposureLevel]float64, len(t.BaseProbability))
	for d, levels := range t.BaseProbability {
		out.BaseProbability[d] = cloneMap(levels)
	}
	out.DefaultExposure = cloneMap(t.DefaultExposure)
	out.Defenses = cloneMap(t.Defenses)
	out.RegionMultipliers = cloneMap(t.RegionMultipliers)
	out.AIUplift = cloneMap(t.AIUplift)

	out.Costs = make(map[forecast.Domain]map[forecast.RiskLevel][]forecast.CostItem, len(t.Costs))
	for d, levels := range t.Costs {
		byLevel := make(map[forecast.RiskLevel][]forecast.CostItem, len(levels))
		for level, items := range levels {
			byLevel[level] = append([]forecast.CostItem(nil), items...)
		}
		out.Costs[d] = byLevel
	}
	out.SizeScale = cloneMap(t.SizeScale)

	out.RemediationWindows = make(map[forecast.RiskLevel][]string, len(t.RemediationWindows))
	for level, windows := range t.RemediationWindows {
		out.RemediationWindows[level] = append([]string(nil), windows...)
	}
	out.RemediationActions = make(map[forecast.Domain]map[string][]string, len(t.RemediationActions))
	for d, windows := range t.RemediationActions {
		byWindow := make(map[string][]string, len(windows))
		for w, actions := range windows {
			byWindow[w] = append([]string(nil), actions...)
		}
		out.RemediationActions[d] = byWindow
	}
	out.DefenseActions = cloneMap(t.DefenseActions)

	return out
}

// Validate checks the tables for values that would break the forecast
// invariants
func (t Tables) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.ErrInvalidTables.WithDetails(map[string]any{
			"reason": fmt.Sprintf(format, args...),
		})
	}

	if !isProbability(t.ProbabilityCap) || t.ProbabilityCap == 0 {
		return invalid("probability cap %v must be in (0, 1]", t.ProbabilityCap)
	}
	if !isProbability(t.SuppressionThreshold) {
		return invalid("suppression threshold %v must be in [0, 1]", t.SuppressionThreshold)
	}
	if t.SuppressionThreshold > t.ProbabilityCap {
		return invalid("suppression threshold %v exceeds probability cap %v", t.SuppressionThreshold, t.ProbabilityCap)
	}
	if !values.IsSupportedCurrency(t.Currency) {
		return invalid("unsupported currency %q", t.Currency)
	}

	for d, levels := range t.BaseProbability {
		for level, p := range levels {
			if !level.IsValid() || !isProbability(p) {
				return invalid("base probability %v for %s/%s", p, d, level)
			}
		}
	}
	for d, level := range t.DefaultExposure {
		if !level.IsValid() {
			return invalid("default exposure %q for %s", level, d)
		}
	}
	for name, f := range t.Defenses {
		if !isFactor(f.Present) || !isFactor(f.Absent) {
			return invalid("defense %s factors must be positive", name)
		}
	}
	for region, f := range t.RegionMultipliers {
		if !isFactor(f) {
			return invalid("region multiplier for %s must be positive", region)
		}
	}
	for d, f := range t.AIUplift {
		if !isFactor(f) {
			return invalid("AI uplift for %s must be positive", d)
		}
	}
	if t.AutomatedDecision != 0 && !isFactor(t.AutomatedDecision) {
		return invalid("automated decision uplift must be positive")
	}

	rt := t.RiskThresholds
	if !(rt.Medium > 0 && rt.Medium < rt.High && rt.High <= 1) {
		return invalid("risk thresholds must satisfy 0 < medium < high <= 1")
	}

	for d, levels := range t.Costs {
		for level, items := range levels {
			for _, item := range items {
				if item.Name == "" || item.Amount.IsNegative() {
					return invalid("cost item %q for %s/%s", item.Name, d, level)
				}
			}
		}
	}
	for size, scale := range t.SizeScale {
		if !scale.IsPositive() {
			return invalid("size scale for %s must be positive", size)
		}
	}

	tr := t.Trend
	if tr.MinDataPoints < 2 {
		return invalid("trend needs at least 2 data points")
	}
	if tr.MinHorizonDays <= 0 || tr.MinHorizonDays > tr.MaxHorizonDays {
		return invalid("trend horizon range [%d, %d] is invalid", tr.MinHorizonDays, tr.MaxHorizonDays)
	}
	if t.HorizonDays < tr.MinHorizonDays || t.HorizonDays > tr.MaxHorizonDays {
		return invalid("horizon %d outside [%d, %d]", t.HorizonDays, tr.MinHorizonDays, tr.MaxHorizonDays)
	}
	if !isFactor(tr.MinFactor) || tr.MinFactor > 1 || tr.MaxFactor < 1 || math.IsInf(tr.MaxFactor, 0) {
		return invalid("trend factor bounds must straddle 1.0")
	}
	if tr.StableBand < 0 || tr.FullConfidencePoints <= 0 || tr.SeasonalMinObservations <= 0 {
		return invalid("trend tuning values must be positive")
	}

	return nil
}

// BaseFor returns the base probability for a domain at an exposure level
func (t Tables) BaseFor(d forecast.Domain, level forecast.ExposureLevel) float64 {
	return t.BaseProbability[d][level]
}

// ExposureFor resolves a domain's exposure from the context, falling back to
// the domain default and then to medium
func (t Tables) ExposureFor(d forecast.Domain, sc forecast.SignalContext) forecast.ExposureLevel {
	fallback, ok := t.DefaultExposure[d]
	if !ok || !fallback.IsValid() {
		fallback = forecast.ExposureMedium
	}
	return sc.ExposureFor(d, fallback)
}

// RegionFor returns the regional multiplier; unknown regions use the default
// entry, or 1.0 if none is configured
func (t Tables) RegionFor(code string) float64 {
	if f, ok := t.RegionMultipliers[code]; ok {
		return f
	}
	if f, ok := t.RegionMultipliers[forecast.DefaultRegion]; ok {
		return f
	}
	return 1.0
}

// LevelFor maps a probability onto a risk level
func (t Tables) LevelFor(p float64) forecast.RiskLevel {
	switch {
	case p >= t.RiskThresholds.High:
		return forecast.RiskLevelHigh
	case p >= t.RiskThresholds.Medium:
		return forecast.RiskLevelMedium
	default:
		return forecast.RiskLevelLow
	}
}

func costItem(name string, amount int64) forecast.CostItem {
	return forecast.CostItem{Name: name, Amount: decimal.NewFromInt(amount)}
}

// costLevels derives the medium and low tables from the high one
func costLevels(high ...forecast.CostItem) map[forecast.RiskLevel][]forecast.CostItem {
	scale := func(factor decimal.Decimal) []forecast.CostItem {
		out := make([]forecast.CostItem, len(high))
		for i, item := range high {
			out[i] = forecast.CostItem{Name: item.Name, Amount: item.Amount.Mul(factor).Round(2)}
		}
		return out
	}

	return map[forecast.RiskLevel][]forecast.CostItem{
		forecast.RiskLevelHigh:   scale(decimal.NewFromInt(1)),
		forecast.RiskLevelMedium: scale(decimal.NewFromFloat(0.4)),
		forecast.RiskLevelLow:    scale(decimal.NewFromFloat(0.1)),
	}
}

func isProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

func isFactor(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
