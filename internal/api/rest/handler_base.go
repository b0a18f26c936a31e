package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	domainErrors "github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
)

const maxBodySize = 1 << 20

// BaseHandler provides decoding, validation and response writing shared by
// all handlers
type BaseHandler struct {
	validator  *validator.Validate
	apiVersion string
	logger     *slog.Logger
}

// NewBaseHandler creates a base handler whose validator reports JSON field
// names
func NewBaseHandler(apiVersion string, logger *slog.Logger) *BaseHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &BaseHandler{
		validator:  v,
		apiVersion: apiVersion,
		logger:     logger,
	}
}

// DecodeAndValidate reads a JSON body into v and runs struct validation
func (h *BaseHandler) DecodeAndValidate(w http.ResponseWriter, r *http.Request, v any) error {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return domainErrors.ErrUnsupportedMediaType.WithDetails(map[string]any{"content_type": contentType})
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			return domainErrors.ErrBodyTooLarge.WithDetails(map[string]any{"max_bytes": maxBodySize})
		}
		return domainErrors.NewValidationError("INVALID_BODY", "Failed to read request body")
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return domainErrors.NewValidationError("INVALID_JSON", "Invalid JSON").
			WithDetails(map[string]any{"reason": err.Error()})
	}

	if err := h.validator.Struct(v); err != nil {
		return h.formatValidationError(err)
	}
	return nil
}

// validationFailure carries per-field messages to the response
type validationFailure struct {
	*domainErrors.AppError
	fields map[string][]string
}

func (e *validationFailure) Unwrap() error { return e.AppError }

// formatValidationError converts validator errors to field messages
func (h *BaseHandler) formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return domainErrors.ErrInvalidInput.WithCause(err)
	}

	fields := make(map[string][]string)
	for _, fe := range validationErrors {
		field := strings.TrimPrefix(fe.Namespace(), "ForecastRequest.")
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required"
		case "min", "gte":
			msg = fmt.Sprintf("Minimum value is %s", fe.Param())
		case "max", "lte":
			msg = fmt.Sprintf("Maximum value is %s", fe.Param())
		case "oneof":
			msg = fmt.Sprintf("Must be one of: %s", fe.Param())
		case "alphanum":
			msg = "Must contain only letters and digits"
		default:
			msg = fmt.Sprintf("Failed %s validation", fe.Tag())
		}
		fields[field] = append(fields[field], msg)
	}

	return &validationFailure{
		AppError: domainErrors.ErrInvalidInput,
		fields:   fields,
	}
}

// writeSuccess writes a successful envelope
func (h *BaseHandler) writeSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	h.writeJSON(w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta:    h.meta(r),
	})
}

// writeError maps err onto a status code and error envelope
func (h *BaseHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := &ErrorResponse{
		Code:      domainErrors.ErrInternal.Code,
		Message:   domainErrors.ErrInternal.Message,
		Retryable: domainErrors.IsRetryable(err),
	}
	status := domainErrors.GetStatusCode(err)

	var vf *validationFailure
	if errors.As(err, &vf) {
		resp.Fields = vf.fields
	}

	if appErr, ok := domainErrors.As(err); ok {
		resp.Code = appErr.Code
		resp.Message = appErr.Message
		// Details of internal errors may carry implementation state.
		if !domainErrors.IsType(err, domainErrors.ErrorTypeInternal) {
			resp.Details = appErr.Details
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	h.writeJSON(w, status, ResponseEnvelope{
		Success: false,
		Error:   resp,
		Meta:    h.meta(r),
	})
}

func (h *BaseHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *BaseHandler) meta(r *http.Request) ResponseMeta {
	return ResponseMeta{
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
		Version:   h.apiVersion,
	}
}
