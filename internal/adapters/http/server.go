// Package http exposes the runtime over a JSON API: intent submission,
// execution polling, the ingest/authorize boundary and artifact discovery.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/graft/internal/logging"
	"github.com/aretw0/graft/internal/runtime"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine is the execution surface the server dispatches to.
type Engine interface {
	Submit(ctx context.Context, in domain.Intent) (string, error)
	Execute(ctx context.Context, in domain.Intent) (*domain.ExecutionResult, error)
	Status(ctx context.Context, executionID string) (*domain.ExecutionResult, error)
}

// Boundary is the two-phase materialization surface.
type Boundary interface {
	Ingest(ctx context.Context, req runtime.IngestRequest) (*runtime.IngestReceipt, error)
	Authorize(ctx context.Context, tenantID, artifactID, contractID string) (*runtime.AuthorizeReceipt, error)
}

// Artifacts is the discovery surface.
type Artifacts interface {
	Resolve(ctx context.Context, tenantID, artifactID string) (*domain.Artifact, error)
	List(ctx context.Context, filter domain.ArtifactFilter) ([]*domain.Artifact, error)
}

// Server wires the runtime surfaces onto a chi router.
type Server struct {
	engine    Engine
	boundary  Boundary
	artifacts Artifacts
	logger    *slog.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets a structured logger for request failures.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler builds the HTTP handler for the runtime.
func NewHandler(engine Engine, boundary Boundary, artifacts Artifacts, opts ...ServerOption) http.Handler {
	s := &Server{
		engine:    engine,
		boundary:  boundary,
		artifacts: artifacts,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	r.Post("/intents", s.submitIntent)
	r.Get("/executions/{executionID}", s.executionStatus)

	r.Post("/artifacts/ingest", s.ingestArtifact)
	r.Post("/artifacts/{artifactID}/authorize", s.authorizeArtifact)
	r.Get("/artifacts/{artifactID}", s.resolveArtifact)
	r.Get("/artifacts", s.listArtifacts)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitResponse struct {
	ExecutionID string `json:"execution_id"`
}

// submitIntent handles POST /intents. Submission is asynchronous: the
// caller receives the execution ID and polls /executions/{id}. Pass
// ?wait=true to block until the execution reaches a terminal state.
func (s *Server) submitIntent(w http.ResponseWriter, r *http.Request) {
	var in domain.Intent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, r, &domain.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		result, err := s.engine.Execute(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	executionID, err := s.engine.Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{ExecutionID: executionID})
}

// executionStatus handles GET /executions/{executionID}.
func (s *Server) executionStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Status(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ingestArtifact handles POST /artifacts/ingest.
func (s *Server) ingestArtifact(w http.ResponseWriter, r *http.Request) {
	var req runtime.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &domain.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}

	receipt, err := s.boundary.Ingest(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

type authorizeRequest struct {
	TenantID   string `json:"tenant_id"`
	ContractID string `json:"boundary_contract_id"`
}

// authorizeArtifact handles POST /artifacts/{artifactID}/authorize.
func (s *Server) authorizeArtifact(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &domain.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if req.TenantID == "" {
		s.writeError(w, r, &domain.ValidationError{Field: "tenant_id", Reason: "must not be empty"})
		return
	}
	if req.ContractID == "" {
		s.writeError(w, r, &domain.ValidationError{Field: "boundary_contract_id", Reason: "must not be empty"})
		return
	}

	receipt, err := s.boundary.Authorize(r.Context(), req.TenantID, chi.URLParam(r, "artifactID"), req.ContractID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// resolveArtifact handles GET /artifacts/{artifactID}?tenant_id=...
func (s *Server) resolveArtifact(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.writeError(w, r, &domain.ValidationError{Field: "tenant_id", Reason: "must not be empty"})
		return
	}

	art, err := s.artifacts.Resolve(r.Context(), tenantID, chi.URLParam(r, "artifactID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

type listResponse struct {
	Artifacts []*domain.Artifact `json:"artifacts"`
}

// listArtifacts handles GET /artifacts with tenant_id, artifact_type,
// lifecycle_state, limit and offset query parameters.
func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ArtifactFilter{
		TenantID:       q.Get("tenant_id"),
		ArtifactType:   q.Get("artifact_type"),
		LifecycleState: domain.LifecycleState(q.Get("lifecycle_state")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, &domain.ValidationError{Field: "limit", Reason: "must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			s.writeError(w, r, &domain.ValidationError{Field: "offset", Reason: "must be a non-negative integer"})
			return
		}
		filter.Offset = offset
	}

	artifacts, err := s.artifacts.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []*domain.Artifact{}
	}
	writeJSON(w, http.StatusOK, listResponse{Artifacts: artifacts})
}

type errorResponse struct {
	Error domain.ErrorInfo `json:"error"`
}

// writeError maps the error taxonomy onto HTTP status codes and writes the
// structured body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	info := domain.ClassifyError(err)

	status := http.StatusInternalServerError
	switch info.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindInvalidTransition:
		status = http.StatusConflict
	case domain.KindContractExpired:
		status = http.StatusGone
	case domain.KindTimeout:
		status = http.StatusGatewayTimeout
	case domain.KindDependencyUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"err", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: *info})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
