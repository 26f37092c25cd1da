package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/burnt-beats/beats-core/pkg/errors"
	"github.com/burnt-beats/beats-core/pkg/generation"
	"github.com/burnt-beats/beats-core/pkg/logging"
	"github.com/burnt-beats/beats-core/pkg/metrics"
	"github.com/burnt-beats/beats-core/pkg/monitoring"
)

const (
	RouteHealthz  = "/healthz"
	RouteHealth   = "/health"
	RouteGenerate = "/api/songs/generate"
	RouteMetrics  = "/metrics"

	maxRequestBytes = 1 << 20
)

// Server is the HTTP surface in front of the orchestrator and the health
// aggregator.
type Server struct {
	aggregator   monitoring.Aggregator
	orchestrator generation.Orchestrator
	metrics      *metrics.Collector
	logger       logging.Logger
	inFlight     atomic.Int64
	mux          *http.ServeMux
}

func NewServer(aggregator monitoring.Aggregator, orchestrator generation.Orchestrator, collector *metrics.Collector, logger logging.Logger) *Server {
	s := &Server{
		aggregator:   aggregator,
		orchestrator: orchestrator,
		metrics:      collector,
		logger:       logger,
		mux:          http.NewServeMux(),
	}

	s.mux.Handle(RouteHealthz, s.instrument(RouteHealthz, http.MethodGet, http.HandlerFunc(s.handleHealthz)))
	s.mux.Handle(RouteHealth, s.instrument(RouteHealth, http.MethodGet, http.HandlerFunc(s.handleHealth)))
	s.mux.Handle(RouteGenerate, s.instrument(RouteGenerate, http.MethodPost, http.HandlerFunc(s.handleGenerate)))
	s.mux.Handle(RouteMetrics, collector.Handler())
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// InFlight returns the number of instrumented requests being served.
func (s *Server) InFlight() int64 {
	return s.inFlight.Load()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(route, method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inFlight.Add(1)
		s.metrics.HTTPInFlight(1)
		defer func() {
			s.inFlight.Add(-1)
			s.metrics.HTTPInFlight(-1)
		}()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		if r.Method != method {
			recorder.Header().Set("Allow", method)
			writeJSON(recorder, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		} else {
			next.ServeHTTP(recorder, r)
		}

		s.metrics.HTTPRequest(route, recorder.status)
		s.logger.Debugf("Request served, method: %s, route: %s, status: %d, duration: %v", r.Method, route, recorder.status, time.Since(start))
	})
}

type healthzBody struct {
	Status    monitoring.OverallStatus `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
}

// handleHealthz serves the cached status and only runs probes before the
// first snapshot exists.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.aggregator.LastSnapshot()
	if !ok {
		snapshot = s.aggregator.CheckHealth(r.Context())
	}
	writeJSON(w, monitoring.HTTPStatus(snapshot.Status), healthzBody{Status: snapshot.Status, Timestamp: snapshot.Timestamp})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var snapshot monitoring.Snapshot
	ok := false
	if r.URL.Query().Get("cached") == "1" {
		snapshot, ok = s.aggregator.LastSnapshot()
	}
	if !ok {
		snapshot = s.aggregator.CheckHealth(r.Context())
	}
	writeJSON(w, monitoring.HTTPStatus(snapshot.Status), snapshot)
}

type errorBody struct {
	Error   string                 `json:"error"`
	Type    errors.ErrorType       `json:"type,omitempty"`
	Details []string               `json:"details,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generation.Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Type: errors.ErrorTypeValidation})
		return
	}

	result, err := s.orchestrator.Generate(r.Context(), req)
	if err != nil {
		status, body := s.errorResponse(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) errorResponse(err error) (int, errorBody) {
	body := errorBody{Error: err.Error(), Type: errors.TypeOf(err)}

	switch {
	case errors.IsValidationError(err):
		body.Error = "invalid generation request"
		var collection *errors.ErrorCollection
		if stderrors.As(err, &collection) {
			for _, detail := range collection.Errors {
				var domainErr *errors.DomainError
				if stderrors.As(detail, &domainErr) {
					body.Details = append(body.Details, domainErr.Message)
				} else {
					body.Details = append(body.Details, detail.Error())
				}
			}
		}
		return http.StatusBadRequest, body

	case errors.IsMandatoryStepError(err):
		body.Error = "backing track generation failed"
		// Stderr stays in the logs; clients get the classification only.
		body.Context = make(map[string]interface{})
		for key, value := range errors.ContextOf(err) {
			if key != "stderr" {
				body.Context[key] = value
			}
		}
		return http.StatusBadGateway, body

	default:
		s.logger.Errorf("Generation failed unexpectedly, error: %v", err)
		body.Error = "internal error"
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
