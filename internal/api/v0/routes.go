// Package v0 provides the REST API handlers for lookup table access.
package v0

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/refdatahq/lookupd/internal/service"
	"github.com/refdatahq/lookupd/internal/versions"
)

// maxDefinitionSize caps the size of a submitted table definition.
const maxDefinitionSize = 1 << 20 // 1MB

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListTablesResponse is the response of the table listing endpoint
type ListTablesResponse struct {
	Tables []service.TableStatus `json:"tables"`
}

// Routes defines the routes for the lookup API with dependency injection
type Routes struct {
	service service.LookupService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.LookupService) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates a new router for the lookup API
func Router(svc service.LookupService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/tables", routes.listTables)
	r.Get("/tables/{name}", routes.getTable)
	r.Get("/tables/{name}/lookup", routes.lookupEntry)
	r.Post("/tables/{name}/reload", routes.reloadTable)
	r.Post("/reload", routes.reload)

	// Declarative registration channel
	r.Put("/namespaces/{namespace}/tables/{name}", routes.registerTable)
	r.Delete("/namespaces/{namespace}/tables/{name}", routes.unregisterTable)

	return r
}

// listTables handles GET /api/v0/tables
func (rr *Routes) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := rr.service.ListTables(r.Context())
	if err != nil {
		rr.writeServiceError(w, err, "Failed to list tables")
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, ListTablesResponse{Tables: tables})
}

// getTable handles GET /api/v0/tables/{name}
func (rr *Routes) getTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	detail, err := rr.service.GetTable(r.Context(), name)
	if err != nil {
		rr.writeServiceError(w, err, "Failed to get table")
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, detail)
}

// lookupEntry handles GET /api/v0/tables/{name}/lookup?key=...
func (rr *Routes) lookupEntry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !r.URL.Query().Has("key") {
		rr.writeErrorResponse(w, "Missing required query parameter: key", http.StatusBadRequest)
		return
	}
	key := r.URL.Query().Get("key")

	row, err := rr.service.LookupEntry(r.Context(), name, key)
	if err != nil {
		rr.writeServiceError(w, err, "Lookup failed")
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, row)
}

// registerTable handles PUT /api/v0/namespaces/{namespace}/tables/{name}.
// The request body is the raw YAML table definition.
func (rr *Routes) registerTable(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	name := chi.URLParam(r, "name")

	spec, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionSize+1))
	if err != nil {
		rr.writeErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(spec) > maxDefinitionSize {
		rr.writeErrorResponse(w, "Table definition too large", http.StatusRequestEntityTooLarge)
		return
	}

	detail, err := rr.service.RegisterTable(r.Context(), namespace, name, spec)
	if err != nil {
		rr.writeServiceError(w, err, "Failed to register table")
		return
	}
	rr.writeJSONResponse(w, http.StatusCreated, detail)
}

// unregisterTable handles DELETE /api/v0/namespaces/{namespace}/tables/{name}
func (rr *Routes) unregisterTable(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	name := chi.URLParam(r, "name")

	if err := rr.service.UnregisterTable(r.Context(), namespace, name); err != nil {
		rr.writeServiceError(w, err, "Failed to unregister table")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reload handles POST /api/v0/reload
func (rr *Routes) reload(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.Reload(r.Context()); err != nil {
		rr.writeServiceError(w, err, "Reload failed")
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// reloadTable handles POST /api/v0/tables/{name}/reload
func (rr *Routes) reloadTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := rr.service.ReloadTable(r.Context(), name); err != nil {
		rr.writeServiceError(w, err, "Reload failed")
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.LookupService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
func readinessHandler(svc service.LookupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			errorResp := ErrorResponse{
				Error: "Service not ready: " + err.Error(),
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			if encodeErr := json.NewEncoder(w).Encode(errorResp); encodeErr != nil {
				slog.Error("Failed to encode readiness error response", "error", encodeErr)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	response := map[string]string{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_date": info.BuildDate,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// writeServiceError maps service errors to HTTP status codes.
func (rr *Routes) writeServiceError(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrTableNotFound), errors.Is(err, service.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrTableExists):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidDefinition):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrTableNotLoadable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error(message, "error", err)
	}
	rr.writeErrorResponse(w, message+": "+err.Error(), status)
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
