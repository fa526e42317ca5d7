package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/plantwise-cloud/pestsearch/internal/domain"
	"github.com/plantwise-cloud/pestsearch/internal/domain/query"
	"github.com/plantwise-cloud/pestsearch/internal/logger"
	"github.com/plantwise-cloud/pestsearch/internal/metrics"
	answeruc "github.com/plantwise-cloud/pestsearch/internal/usecase/answer"
	healthuc "github.com/plantwise-cloud/pestsearch/internal/usecase/health"
)

// Server hosts the pestsearch HTTP API.
type Server struct {
	answer       *answeruc.Service
	health       *healthuc.Service
	logger       *zap.Logger
	apiKeys      []string
	queryTimeout time.Duration
}

// NewServer creates an HTTP API server.
func NewServer(
	answer *answeruc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
	apiKeys []string,
	queryTimeout time.Duration,
) *Server {
	return &Server{
		answer:       answer,
		health:       health,
		logger:       logger,
		apiKeys:      apiKeys,
		queryTimeout: queryTimeout,
	}
}

// Routes assembles the router with middleware.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(RequestIDMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(s.apiKeys))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/v1/query", s.handleQuery)

	return r
}

// queryRequest is the inbound contract from the dialogue layer.
type queryRequest struct {
	ProblemText      string      `json:"problem_text"`
	DamageText       string      `json:"damage_text,omitempty"`
	StructuredTerms  [][]termDTO `json:"structured_terms,omitempty"`
	PriorRefinements []string    `json:"prior_refinements,omitempty"`
	Debug            bool        `json:"debug,omitempty"`
}

type termDTO struct {
	Role       string `json:"role"`
	EntityType int    `json:"entity_type"`
	Value      string `json:"value"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	groups, err := groupsFromDTO(req.StructuredTerms)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	ctx := r.Context()
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	resp, err := s.answer.SubmitQuery(ctx, answeruc.Request{
		ProblemText:      req.ProblemText,
		DamageText:       req.DamageText,
		Groups:           groups,
		PriorRefinements: req.PriorRefinements,
		Debug:            req.Debug,
	})
	if err != nil {
		s.handleQueryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrMalformedQuery):
		writeError(w, http.StatusBadRequest, "malformed_query",
			"Problem text is empty or unusable after normalization")
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, "embedding_provider_error",
			"Embedding provider is unavailable, try again")
	case errors.Is(err, domain.ErrRetrievalUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "retrieval_unavailable",
			"Search backend is unavailable, try again")
	default:
		logger.FromContext(r.Context()).Error("Query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// groupsFromDTO validates and converts structured terms.
func groupsFromDTO(dto [][]termDTO) ([]query.Group, error) {
	groups := make([]query.Group, 0, len(dto))
	for _, g := range dto {
		group := make(query.Group, 0, len(g))
		for _, t := range g {
			role := query.Role(t.Role)
			if !role.Valid() {
				return nil, errors.New("unknown term role: " + t.Role)
			}
			group = append(group, query.Term{
				Role:       role,
				EntityType: t.EntityType,
				Value:      t.Value,
			})
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
