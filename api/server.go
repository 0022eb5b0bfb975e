// Package api exposes the generation service over HTTP. Handlers stay
// thin: decode, delegate to the service, encode.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/casegen/generate"
	"github.com/c360studio/casegen/llm"
	"github.com/c360studio/casegen/parse"
)

// Server routes HTTP requests to the generation service.
type Server struct {
	svc    *generate.Service
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates the HTTP surface over a generation service.
func NewServer(svc *generate.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/testcases", s.handleList)
	s.mux.HandleFunc("GET /api/testcases/csv-filename", s.handleCSVFilename)
	s.mux.HandleFunc("POST /api/testcases/from-requirements", s.handleFromRequirements)
	s.mux.HandleFunc("POST /api/testcases/generate-test-cases", s.handleGenerate)
	s.mux.HandleFunc("GET /api/testcases/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /api/testcases/{id}", s.handleDelete)

	s.mux.HandleFunc("POST /api/testcases/batch-generate", s.handleBatchGenerate)
	s.mux.HandleFunc("GET /api/testcases/batches/{batchID}", s.handleBatchStatus)
	s.mux.HandleFunc("POST /api/testcases/batches/{batchID}/features/{featureID}/retry", s.handleRetryFeature)
	s.mux.HandleFunc("GET /api/testcases/batches/{batchID}/export-all", s.handleBatchExportCSV)

	s.mux.HandleFunc("POST /api/testcases/export-to-excel", s.handleExportToExcel)
	s.mux.HandleFunc("POST /api/testcases/export-all-to-excel", s.handleExportAllToExcel)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

// writeGenerationError maps service failures onto HTTP statuses:
// configuration mistakes are the client's fault, everything the model or
// the provider did wrong is a bad gateway.
func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case llm.IsAuth(err) || llm.IsUnsupportedProvider(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case parse.IsMalformed(err):
		s.writeError(w, http.StatusBadGateway, "AI returned invalid structure: "+err.Error())
	case errors.Is(err, generate.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, "Failed to generate test cases: "+err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
