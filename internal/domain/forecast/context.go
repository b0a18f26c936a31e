package forecast

import (
	"sort"
	"strings"
)

// DefaultRegion is the region key used when a context carries no region
const DefaultRegion = "default"

// SignalContext is the immutable posture snapshot a forecast is computed from.
//
// Every field is optional. The zero value of a defense flag means the
// capability is not in place and the calculator applies its "absent" factor.
// Missing exposure levels fall back to the configured domain default and an
// empty region uses the neutral regional multiplier.
type SignalContext struct {
	Region           string                   `json:"region,omitempty"`
	Exposure         map[Domain]ExposureLevel `json:"exposure,omitempty"`
	OrganizationSize OrganizationSize         `json:"organization_size,omitempty"`

	UsesAISystems           bool `json:"uses_ai_systems"`
	AutomatedDecisionMaking bool `json:"automated_decision_making"`

	// Lawful processing
	ConsentManagement bool `json:"consent_management"`
	ProcessingRecords bool `json:"processing_records"`

	// AI Act
	AIRiskAssessment bool `json:"ai_risk_assessment"`
	HumanOversight   bool `json:"human_oversight"`

	// Data breach
	EncryptionAtRest   bool `json:"encryption_at_rest"`
	SecurityMonitoring bool `json:"security_monitoring"`

	// Third party
	VendorAssessments    bool `json:"vendor_assessments"`
	ProcessingAgreements bool `json:"processing_agreements"`

	// Document and identity fraud
	IdentityVerification bool `json:"identity_verification"`
	FraudMonitoring      bool `json:"fraud_monitoring"`

	// History is resolved by the caller; the engine only reads it.
	History []HistorySnapshot `json:"history,omitempty"`
}

// RegionCode returns the normalized region, or DefaultRegion when unset
func (c SignalContext) RegionCode() string {
	region := strings.ToUpper(strings.TrimSpace(c.Region))
	if region == "" {
		return DefaultRegion
	}
	return region
}

// ExposureFor returns the exposure recorded for a domain. Missing or unknown
// levels resolve to fallback.
func (c SignalContext) ExposureFor(d Domain, fallback ExposureLevel) ExposureLevel {
	level, ok := c.Exposure[d]
	if !ok || !level.IsValid() {
		return fallback
	}
	return level
}

// Size returns the organization size, defaulting to medium
func (c SignalContext) Size() OrganizationSize {
	if !c.OrganizationSize.IsValid() {
		return OrganizationMedium
	}
	return c.OrganizationSize
}

// HistoryFor returns a chronologically ordered copy of the snapshots that
// belong to a domain. The context's own slice is left untouched.
func (c SignalContext) HistoryFor(d Domain) []HistorySnapshot {
	var out []HistorySnapshot
	for _, snap := range c.History {
		if snap.Domain == d {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out
}

// WithHistory returns a copy of the context carrying the given history
func (c SignalContext) WithHistory(history []HistorySnapshot) SignalContext {
	c.History = append([]HistorySnapshot(nil), history...)
	return c
}
