package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/service/forecasting"
	"github.com/davidleathers/risk-forecast-engine/internal/service/riskforecast"
	"github.com/davidleathers/risk-forecast-engine/internal/testutil/mocks"
)

const (
	tenantPath         = "/api/v1/tenants/5f0c2a8e-4b1d-4c6e-9a7f-2d3e4f5a6b7c/forecasts"
	twoMaterialDomains = `{
		"context": {
			"region": "NL",
			"uses_ai_systems": true,
			"automated_decision_making": false,
			"exposure": {
				"lawful_processing": "low",
				"ai_act": "low",
				"data_breach": "low",
				"third_party": "medium",
				"document_fraud": "high"
			},
			"consent_management": true,
			"processing_records": true,
			"ai_risk_assessment": true,
			"human_oversight": true,
			"encryption_at_rest": true,
			"security_monitoring": true
		}
	}`
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestService(t *testing.T, opts ...forecasting.Option) *forecasting.Service {
	t.Helper()
	engine, err := riskforecast.NewEngine(riskforecast.DefaultTables(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return forecasting.NewService(engine, zaptest.NewLogger(t), forecasting.DefaultConfig(), opts...)
}

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Service = newTestService(t)
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.ValidateRequests = true
	if mutate != nil {
		mutate(cfg)
	}

	router, err := NewRouter(cfg)
	require.NoError(t, err)
	return router
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorResponse  `json:"error"`
	Meta    ResponseMeta    `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestCreateForecast(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doRequest(t, router, http.MethodPost, tenantPath, twoMaterialDomains)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Meta.RequestID)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), env.Meta.RequestID)

	var result forecasting.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))

	require.Len(t, result.Forecasts, 2)
	assert.Equal(t, forecast.DomainDocumentFraud, result.Forecasts[0].Domain)
	assert.Equal(t, 0.8, result.Forecasts[0].Probability)
	assert.Equal(t, forecast.DomainThirdParty, result.Forecasts[1].Domain)
	assert.InDelta(t, 0.756, result.Forecasts[1].Probability, 1e-9)
	assert.Equal(t, "3700000", result.Forecasts[0].CostOfInaction.Total().String())
	assert.Contains(t, rec.Body.String(), `"total_display":"€3700000.00"`)
	assert.Len(t, result.NotMaterial, 3)
	assert.Equal(t, forecast.ContextVersion, result.ContextVersion)
}

func TestCreateForecast_RequestIDIsPropagated(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, tenantPath, strings.NewReader(`{"context":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", decodeEnvelope(t, rec).Meta.RequestID)
}

func TestCreateForecast_Validation(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		validate   bool
		wantCode   string
		wantField  string
		wantStatus int
	}{
		{
			name:       "tenant is not a uuid",
			path:       "/api/v1/tenants/acme/forecasts",
			body:       `{"context":{}}`,
			wantCode:   "INVALID_TENANT",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			path:       tenantPath,
			body:       `{"context":`,
			wantCode:   "INVALID_JSON",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			path:       tenantPath,
			body:       `{"context":{"colour":"blue"}}`,
			wantCode:   "INVALID_JSON",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "exposure level too long",
			path:       tenantPath,
			body:       `{"context":{"exposure":{"data_breach":"` + strings.Repeat("x", 17) + `"}}}`,
			wantCode:   "INVALID_INPUT",
			wantField:  "context.exposure[data_breach]",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "history probability out of range",
			path:       tenantPath,
			body:       `{"context":{"history":[{"domain":"data_breach","recorded_at":"2025-01-01T00:00:00Z","probability":1.5}]}}`,
			wantCode:   "INVALID_INPUT",
			wantField:  "context.history[0].probability",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown exposure domain reaches the service",
			path:       tenantPath,
			body:       `{"context":{"exposure":{"export_controls":"high"}}}`,
			wantCode:   "UNKNOWN_DOMAIN",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "contract rejects overlong region",
			path:       tenantPath,
			body:       `{"context":{"region":"ABCDEFGHIJKLMNOPQ"}}`,
			validate:   true,
			wantCode:   "CONTRACT_VIOLATION",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, func(c *Config) { c.ValidateRequests = tt.validate })

			rec := doRequest(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			if tt.wantField != "" {
				assert.Contains(t, env.Error.Fields, tt.wantField)
			}
		})
	}
}

func TestCreateForecast_UnrecognizedExposureIsDefaulted(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doRequest(t, router, http.MethodPost, tenantPath,
		`{"context":{"exposure":{"data_breach":"extreme"},"organization_size":"huge"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result forecasting.Result
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, 5, result.Evaluated)
}

func TestCreateForecast_UnsupportedMediaType(t *testing.T) {
	router := newTestRouter(t, func(c *Config) { c.ValidateRequests = false })

	req := httptest.NewRequest(http.MethodPost, tenantPath, strings.NewReader(`context=1`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", env.Error.Code)
	assert.False(t, env.Error.Retryable)
}

func TestCreateForecast_BodyTooLarge(t *testing.T) {
	router := newTestRouter(t, func(c *Config) { c.ValidateRequests = false })

	body := `{"context":{"region":"` + strings.Repeat("A", maxBodySize) + `"}}`
	rec := doRequest(t, router, http.MethodPost, tenantPath, body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "BODY_TOO_LARGE", env.Error.Code)
	assert.EqualValues(t, maxBodySize, env.Error.Details["max_bytes"])
}

func TestCreateForecast_HistoryUnavailable(t *testing.T) {
	store := new(mocks.MockHistoryStore)
	store.On("Recent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	router := newTestRouter(t, func(c *Config) {
		c.Service = newTestService(t, forecasting.WithHistory(store))
	})

	rec := doRequest(t, router, http.MethodPost, tenantPath, twoMaterialDomains)
	require.Equal(t, http.StatusOK, rec.Code)

	var result forecasting.Result
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.True(t, result.HistoryUnavailable)
	assert.Len(t, result.Forecasts, 2)
}

func TestGetTables(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/forecast/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tables TablesResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &tables))
	assert.Equal(t, forecast.ContextVersion, tables.ContextVersion)
	assert.Equal(t, 0.8, tables.Tables.ProbabilityCap)
	assert.Equal(t, 0.12, tables.Tables.SuppressionThreshold)
	assert.Equal(t, 1.4, tables.Tables.RegionMultipliers["NL"])
}

func TestGetOpenAPI(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.Equal(OpenAPIDocument(), rec.Body.Bytes()))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name        string
		history     HealthChecker
		wantStatus  int
		wantHistory string
	}{
		{"no history store", nil, http.StatusOK, "disabled"},
		{"history reachable", pinger{}, http.StatusOK, "ok"},
		{"history down", pinger{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, func(c *Config) { c.History = tt.history })

			rec := doRequest(t, router, http.MethodGet, "/healthz", "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			env := decodeEnvelope(t, rec)
			if tt.wantHistory == "" {
				assert.False(t, env.Success)
				return
			}
			var health HealthResponse
			require.NoError(t, json.Unmarshal(env.Data, &health))
			assert.Equal(t, tt.wantHistory, health.History)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	doRequest(t, router, http.MethodPost, tenantPath, twoMaterialDomains)

	rec := doRequest(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rfe_api_http_requests_total")
	assert.Contains(t, rec.Body.String(), "rfe_forecast_served_total")
}

func TestRateLimiting(t *testing.T) {
	router := newTestRouter(t, func(c *Config) {
		c.RequestsPerSecond = 0.001
		c.BurstSize = 2
	})

	for i := 0; i < 2; i++ {
		rec := doRequest(t, router, http.MethodGet, "/api/v1/forecast/tables", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, router, http.MethodGet, "/api/v1/forecast/tables", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeEnvelope(t, rec).Error.Code)

	// Health checks are not rate limited
	assert.Equal(t, http.StatusOK, doRequest(t, router, http.MethodGet, "/healthz", "").Code)
}

func TestRateLimiting_ZeroBurstStillAdmits(t *testing.T) {
	router := newTestRouter(t, func(c *Config) {
		c.RequestsPerSecond = 50
		c.BurstSize = 0
	})

	rec := doRequest(t, router, http.MethodPost, tenantPath, `{"context":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	base := NewBaseHandler("v1", slog.New(slog.NewTextHandler(&logs, nil)))
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("dsn=postgres://rfe:s3cret@db/rfe")
	}), recoveryMiddleware(base), requestIDMiddleware)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Equal(t, "An internal error occurred", env.Error.Message)
	assert.NotContains(t, rec.Body.String(), "s3cret")
	assert.Contains(t, logs.String(), "s3cret")
}

func TestNewRouter_RequiresService(t *testing.T) {
	_, err := NewRouter(DefaultConfig())
	assert.Error(t, err)

	_, err = NewRouter(nil)
	assert.Error(t, err)
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, doRequest(t, router, http.MethodGet, "/api/v1/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(t, router, http.MethodGet, tenantPath, "").Code)
}
