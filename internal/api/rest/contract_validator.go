package rest

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	domainErrors "github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// OpenAPIDocument returns the embedded API contract
func OpenAPIDocument() []byte {
	return openAPIDocument
}

// ContractValidator validates HTTP requests and responses against the
// embedded OpenAPI document
type ContractValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewContractValidator loads and validates the embedded document
func NewContractValidator() (*ContractValidator, error) {
	return newContractValidator(openAPIDocument)
}

func newContractValidator(spec []byte) (*ContractValidator, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &ContractValidator{doc: doc, router: router}, nil
}

func (cv *ContractValidator) route(req *http.Request) (*routers.Route, map[string]string, error) {
	route, pathParams, err := cv.router.FindRoute(req)
	if err != nil {
		return nil, nil, fmt.Errorf("no matching route found: %w", err)
	}
	return route, pathParams, nil
}

// ValidateRequest validates an HTTP request against the document. The body
// is restored so handlers can still read it.
func (cv *ContractValidator) ValidateRequest(req *http.Request) error {
	route, pathParams, err := cv.route(req)
	if err != nil {
		return err
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
	}
	if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// ValidateResponse validates a recorded response for req
func (cv *ContractValidator) ValidateResponse(req *http.Request, status int, header http.Header, body []byte) error {
	route, pathParams, err := cv.route(req)
	if err != nil {
		return err
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: status,
		Header: header,
	}
	input.SetBodyBytes(body)

	if err := openapi3filter.ValidateResponse(req.Context(), input); err != nil {
		return fmt.Errorf("response validation failed: %w", err)
	}
	return nil
}

// ValidateSchema validates a decoded JSON value against a named component
// schema
func (cv *ContractValidator) ValidateSchema(schemaName string, data any) error {
	schema := cv.doc.Components.Schemas[schemaName]
	if schema == nil {
		return fmt.Errorf("schema %s not found", schemaName)
	}
	if err := schema.Value.VisitJSON(data); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// contractMiddleware rejects requests that do not match the document
func contractMiddleware(cv *ContractValidator, base *BaseHandler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := cv.ValidateRequest(r); err != nil {
				base.logger.DebugContext(r.Context(), "request rejected by contract",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				base.writeError(w, r, domainErrors.NewValidationError("CONTRACT_VIOLATION", "Request does not match the API contract").
					WithDetails(map[string]any{"reason": err.Error()}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
