package rest

import (
	"strings"
	"time"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// ForecastRequest is the body of POST /api/v1/tenants/{tenantID}/forecasts
type ForecastRequest struct {
	Context SignalContextRequest `json:"context" validate:"required"`
}

// SignalContextRequest mirrors forecast.SignalContext with input constraints
type SignalContextRequest struct {
	Region           string            `json:"region" validate:"omitempty,max=16,alphanum"`
	Exposure         map[string]string `json:"exposure" validate:"omitempty,max=32,dive,keys,required,max=64,endkeys,max=16"`
	OrganizationSize string            `json:"organization_size" validate:"omitempty,max=16"`

	UsesAISystems           bool `json:"uses_ai_systems"`
	AutomatedDecisionMaking bool `json:"automated_decision_making"`
	ConsentManagement       bool `json:"consent_management"`
	ProcessingRecords       bool `json:"processing_records"`
	AIRiskAssessment        bool `json:"ai_risk_assessment"`
	HumanOversight          bool `json:"human_oversight"`
	EncryptionAtRest        bool `json:"encryption_at_rest"`
	SecurityMonitoring      bool `json:"security_monitoring"`
	VendorAssessments       bool `json:"vendor_assessments"`
	ProcessingAgreements    bool `json:"processing_agreements"`
	IdentityVerification    bool `json:"identity_verification"`
	FraudMonitoring         bool `json:"fraud_monitoring"`

	History []HistorySnapshotRequest `json:"history" validate:"omitempty,max=1000,dive"`
}

// HistorySnapshotRequest is one caller-supplied history observation
type HistorySnapshotRequest struct {
	Domain           string    `json:"domain" validate:"required,max=64"`
	RecordedAt       time.Time `json:"recorded_at" validate:"required"`
	Probability      *float64  `json:"probability" validate:"required,gte=0,lte=1"`
	IncidentOccurred bool      `json:"incident_occurred"`
}

// ToDomain converts the request into the engine's input type
func (r SignalContextRequest) ToDomain() forecast.SignalContext {
	sc := forecast.SignalContext{
		Region:                  strings.TrimSpace(r.Region),
		OrganizationSize:        forecast.OrganizationSize(r.OrganizationSize),
		UsesAISystems:           r.UsesAISystems,
		AutomatedDecisionMaking: r.AutomatedDecisionMaking,
		ConsentManagement:       r.ConsentManagement,
		ProcessingRecords:       r.ProcessingRecords,
		AIRiskAssessment:        r.AIRiskAssessment,
		HumanOversight:          r.HumanOversight,
		EncryptionAtRest:        r.EncryptionAtRest,
		SecurityMonitoring:      r.SecurityMonitoring,
		VendorAssessments:       r.VendorAssessments,
		ProcessingAgreements:    r.ProcessingAgreements,
		IdentityVerification:    r.IdentityVerification,
		FraudMonitoring:         r.FraudMonitoring,
	}

	if len(r.Exposure) > 0 {
		sc.Exposure = make(map[forecast.Domain]forecast.ExposureLevel, len(r.Exposure))
		for d, level := range r.Exposure {
			sc.Exposure[forecast.Domain(d)] = forecast.ExposureLevel(level)
		}
	}

	for _, h := range r.History {
		sc.History = append(sc.History, forecast.HistorySnapshot{
			Domain:           forecast.Domain(h.Domain),
			RecordedAt:       h.RecordedAt,
			Probability:      *h.Probability,
			IncidentOccurred: h.IncidentOccurred,
		})
	}

	return sc
}
