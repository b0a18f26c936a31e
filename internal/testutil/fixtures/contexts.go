package fixtures

import (
	"time"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// ContextBuilder assembles SignalContext values for tests
type ContextBuilder struct {
	sc forecast.SignalContext
}

// NewContextBuilder starts from the zero context: default region, default
// exposure and every defense absent
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{
		sc: forecast.SignalContext{Exposure: make(map[forecast.Domain]forecast.ExposureLevel)},
	}
}

func (b *ContextBuilder) WithRegion(region string) *ContextBuilder {
	b.sc.Region = region
	return b
}

func (b *ContextBuilder) WithExposure(d forecast.Domain, level forecast.ExposureLevel) *ContextBuilder {
	b.sc.Exposure[d] = level
	return b
}

// WithExposureAll sets the same exposure for every built-in domain
func (b *ContextBuilder) WithExposureAll(level forecast.ExposureLevel) *ContextBuilder {
	for _, d := range forecast.AllDomains() {
		b.sc.Exposure[d] = level
	}
	return b
}

func (b *ContextBuilder) WithAISystems(automatedDecisions bool) *ContextBuilder {
	b.sc.UsesAISystems = true
	b.sc.AutomatedDecisionMaking = automatedDecisions
	return b
}

func (b *ContextBuilder) WithSize(size forecast.OrganizationSize) *ContextBuilder {
	b.sc.OrganizationSize = size
	return b
}

// WithDefenses switches on both defenses of the given domains
func (b *ContextBuilder) WithDefenses(domains ...forecast.Domain) *ContextBuilder {
	for _, d := range domains {
		switch d {
		case forecast.DomainLawfulProcessing:
			b.sc.ConsentManagement, b.sc.ProcessingRecords = true, true
		case forecast.DomainAIAct:
			b.sc.AIRiskAssessment, b.sc.HumanOversight = true, true
		case forecast.DomainDataBreach:
			b.sc.EncryptionAtRest, b.sc.SecurityMonitoring = true, true
		case forecast.DomainThirdParty:
			b.sc.VendorAssessments, b.sc.ProcessingAgreements = true, true
		case forecast.DomainDocumentFraud:
			b.sc.IdentityVerification, b.sc.FraudMonitoring = true, true
		}
	}
	return b
}

func (b *ContextBuilder) WithHistory(history ...forecast.HistorySnapshot) *ContextBuilder {
	b.sc.History = append(b.sc.History, history...)
	return b
}

// Build returns a copy so the builder can be reused
func (b *ContextBuilder) Build() forecast.SignalContext {
	sc := b.sc
	sc.Exposure = make(map[forecast.Domain]forecast.ExposureLevel, len(b.sc.Exposure))
	for d, level := range b.sc.Exposure {
		sc.Exposure[d] = level
	}
	sc.History = append([]forecast.HistorySnapshot(nil), b.sc.History...)
	return sc
}

// TwoMaterialDomainsContext yields exactly two material forecasts with the
// default tables: document fraud capped at 0.8 and third party at 0.756
func TwoMaterialDomainsContext() forecast.SignalContext {
	return NewContextBuilder().
		WithRegion("NL").
		WithAISystems(false).
		WithExposureAll(forecast.ExposureLow).
		WithExposure(forecast.DomainDocumentFraud, forecast.ExposureHigh).
		WithExposure(forecast.DomainThirdParty, forecast.ExposureMedium).
		WithDefenses(forecast.DomainLawfulProcessing, forecast.DomainAIAct, forecast.DomainDataBreach).
		Build()
}

// LinearHistory returns n snapshots spaced interval apart, starting at start
// with probability from and changing by step each time
func LinearHistory(d forecast.Domain, start time.Time, interval time.Duration, n int, from, step float64) []forecast.HistorySnapshot {
	out := make([]forecast.HistorySnapshot, n)
	for i := range out {
		out[i] = forecast.HistorySnapshot{
			Domain:      d,
			RecordedAt:  start.Add(time.Duration(i) * interval),
			Probability: from + float64(i)*step,
		}
	}
	return out
}
