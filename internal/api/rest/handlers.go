package rest

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domainErrors "github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-forecast-engine/internal/service/forecasting"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handlers serves the forecast API
type Handlers struct {
	*BaseHandler
	service *forecasting.Service
	history HealthChecker
	tracer  trace.Tracer
}

// NewHandlers creates the API handlers. history may be nil when no store is
// configured.
func NewHandlers(base *BaseHandler, service *forecasting.Service, history HealthChecker) *Handlers {
	return &Handlers{
		BaseHandler: base,
		service:     service,
		history:     history,
		tracer:      telemetry.Tracer("github.com/davidleathers/risk-forecast-engine/internal/api/rest"),
	}
}

// CreateForecast handles POST /api/v1/tenants/{tenantID}/forecasts
func (h *Handlers) CreateForecast(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "POST /api/v1/tenants/{tenantID}/forecasts",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.request.method", r.Method)),
	)
	defer span.End()
	r = r.WithContext(ctx)

	tenantID, err := uuid.Parse(r.PathValue("tenantID"))
	if err != nil || tenantID == uuid.Nil {
		h.writeError(w, r, domainErrors.ErrInvalidTenant)
		return
	}

	var req ForecastRequest
	if err := h.DecodeAndValidate(w, r, &req); err != nil {
		telemetry.RecordError(span, err)
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Forecast(ctx, forecasting.Request{
		TenantID: tenantID,
		Context:  req.Context.ToDomain(),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		h.writeError(w, r, err)
		return
	}

	for _, f := range result.Forecasts {
		forecastsServed.WithLabelValues(string(f.Domain), string(f.RiskLevel)).Inc()
	}
	if result.HistoryUnavailable {
		historyDegraded.Inc()
	}

	h.writeSuccess(w, r, http.StatusOK, result)
}

// GetTables handles GET /api/v1/forecast/tables
func (h *Handlers) GetTables(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, r, http.StatusOK, TablesResponse{
		ContextVersion: forecast.ContextVersion,
		Tables:         h.service.Engine().Tables(),
	})
}

// GetOpenAPI handles GET /api/v1/openapi.yaml
func (h *Handlers) GetOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeSuccess(w, r, http.StatusOK, HealthResponse{Status: "ok", History: "disabled"})
		return
	}

	if err := h.history.Ping(r.Context()); err != nil {
		h.writeError(w, r, domainErrors.NewUnavailableError("History store unreachable").WithCause(err))
		return
	}
	h.writeSuccess(w, r, http.StatusOK, HealthResponse{Status: "ok", History: "ok"})
}
