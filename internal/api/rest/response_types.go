package rest

import (
	"time"

	"github.com/davidleathers/risk-forecast-engine/internal/service/riskforecast"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Retryable bool                `json:"retryable"`
	Fields    map[string][]string `json:"fields,omitempty"`
	Details   map[string]any      `json:"details,omitempty"`
}

// TablesResponse exposes the calibration the engine is running with
type TablesResponse struct {
	ContextVersion string              `json:"context_version"`
	Tables         riskforecast.Tables `json:"tables"`
}

// HealthResponse reports process and dependency health
type HealthResponse struct {
	Status  string `json:"status"`
	History string `json:"history,omitempty"`
}
