package forecast

import "strings"

// ContextVersion identifies the SignalContext field set and its defaults.
// Bump it whenever a field is added or a default changes.
const ContextVersion = "2024-11"

// Domain identifies a category of regulatory risk
type Domain string

const (
	DomainLawfulProcessing Domain = "lawful_processing"
	DomainAIAct            Domain = "ai_act"
	DomainDataBreach       Domain = "data_breach"
	DomainThirdParty       Domain = "third_party"
	DomainDocumentFraud    Domain = "document_fraud"
)

// AllDomains returns the built-in domains in canonical order
func AllDomains() []Domain {
	return []Domain{
		DomainLawfulProcessing,
		DomainAIAct,
		DomainDataBreach,
		DomainThirdParty,
		DomainDocumentFraud,
	}
}

// IsValid reports whether d is one of the built-in domains
func (d Domain) IsValid() bool {
	for _, known := range AllDomains() {
		if d == known {
			return true
		}
	}
	return false
}

func (d Domain) String() string {
	return string(d)
}

// ExposureLevel is the categorical exposure of an organization to a domain
type ExposureLevel string

const (
	ExposureLow    ExposureLevel = "low"
	ExposureMedium ExposureLevel = "medium"
	ExposureHigh   ExposureLevel = "high"
)

// IsValid reports whether the exposure level is known
func (e ExposureLevel) IsValid() bool {
	switch e {
	case ExposureLow, ExposureMedium, ExposureHigh:
		return true
	default:
		return false
	}
}

// ParseExposureLevel parses an exposure level case-insensitively.
// The boolean is false for empty or unknown input.
func ParseExposureLevel(s string) (ExposureLevel, bool) {
	level := ExposureLevel(strings.ToLower(strings.TrimSpace(s)))
	return level, level.IsValid()
}

// RiskLevel is the categorical level derived from a forecast probability
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// RiskLevels returns every risk level from least to most severe
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh}
}

// OrganizationSize scales the monetary impact of a materialized violation
type OrganizationSize string

const (
	OrganizationSmall      OrganizationSize = "small"
	OrganizationMedium     OrganizationSize = "medium"
	OrganizationLarge      OrganizationSize = "large"
	OrganizationEnterprise OrganizationSize = "enterprise"
)

// IsValid reports whether the organization size is known
func (s OrganizationSize) IsValid() bool {
	switch s {
	case OrganizationSmall, OrganizationMedium, OrganizationLarge, OrganizationEnterprise:
		return true
	default:
		return false
	}
}
