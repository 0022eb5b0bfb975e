package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/casegen/export"
	"github.com/c360studio/casegen/generate"
	"github.com/c360studio/casegen/testcase"
)

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GenerateRequest is the AI generation payload. number_of_cases is
// deprecated: when present it is mapped onto a coverage level and a warning
// is logged.
type GenerateRequest struct {
	FeatureName        string `json:"feature_name"`
	FeatureDescription string `json:"feature_description"`
	AllowedActions     string `json:"allowed_actions,omitempty"`
	ExcludedFeatures   string `json:"excluded_features,omitempty"`
	CoverageLevel      string `json:"coverage_level,omitempty"`
	Provider           string `json:"provider,omitempty"`
	ModelProfile       string `json:"model_profile,omitempty"`
	ModelID            string `json:"model_id,omitempty"`
	NumberOfCases      int    `json:"number_of_cases,omitempty"`
}

type listResponse struct {
	Items []testcase.TestCase `json:"items"`
	Total int                 `json:"total"`
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FeatureName) == "" || strings.TrimSpace(req.FeatureDescription) == "" {
		s.writeError(w, http.StatusBadRequest, "feature_name and feature_description are required")
		return
	}
	// Deprecated knob. When present it wins, even over an explicit
	// coverage_level.
	if req.NumberOfCases > 0 {
		req.CoverageLevel = generate.LevelForCaseCount(req.NumberOfCases)
		s.logger.Warn("number_of_cases is deprecated; mapped to coverage_level",
			"number_of_cases", req.NumberOfCases,
			"coverage_level", req.CoverageLevel)
	}

	cases, err := s.svc.Generate(r.Context(), generate.Request{
		FeatureName:        req.FeatureName,
		FeatureDescription: req.FeatureDescription,
		AllowedActions:     req.AllowedActions,
		ExcludedFeatures:   req.ExcludedFeatures,
		CoverageLevel:      req.CoverageLevel,
		Provider:           req.Provider,
		ModelProfile:       req.ModelProfile,
		ModelID:            req.ModelID,
	})
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	if r.URL.Query().Get("generate_excel") == "true" {
		w.Header().Set("Content-Type", excelContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="generated-test-cases.xlsx"`)
		if err := export.WriteExcel(w, cases); err != nil {
			s.logger.Error("Excel export failed", "error", err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Items: cases, Total: len(cases)})
}

func (s *Server) handleFromRequirements(w http.ResponseWriter, r *http.Request) {
	var req generate.DirectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Component == "" || len(req.Requirements) == 0 {
		s.writeError(w, http.StatusBadRequest, "component and requirements are required")
		return
	}
	cases := s.svc.GenerateFromRequirements(req)
	s.writeJSON(w, http.StatusOK, listResponse{Items: cases, Total: len(cases)})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	cases := s.svc.List()
	s.writeJSON(w, http.StatusOK, listResponse{Items: cases, Total: len(cases)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid test case id")
		return
	}
	tc, ok := s.svc.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("test case %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid test case id")
		return
	}
	if !s.svc.DeleteCase(id) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("test case %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCSVFilename(w http.ResponseWriter, r *http.Request) {
	filename := export.CSVFilename(r.URL.Query().Get("feature_name"))
	s.writeJSON(w, http.StatusOK, map[string]string{"filename": filename})
}

// BatchRequest starts a batch of feature generations.
type BatchRequest struct {
	Provider     string             `json:"provider,omitempty"`
	ModelProfile string             `json:"model_profile,omitempty"`
	ModelID      string             `json:"model_id,omitempty"`
	Features     []generate.Feature `json:"features"`
}

func (s *Server) handleBatchGenerate(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	batchID, err := s.svc.StartBatch(r.Context(), req.Provider, req.Features, req.ModelProfile, req.ModelID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"batch_id": batchID})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.BatchStatus(r.PathValue("batchID"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRetryFeature(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RetryFeature(r.Context(),
		r.PathValue("batchID"),
		r.PathValue("featureID"),
		r.URL.Query().Get("provider"))
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Retry finished"})
}

func (s *Server) handleBatchExportCSV(w http.ResponseWriter, r *http.Request) {
	cases, err := s.svc.MergedCases(r.PathValue("batchID"), true)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if len(cases) == 0 {
		s.writeError(w, http.StatusNotFound, "batch has no test cases")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.CSVFilename("")))
	if err := export.WriteCSV(w, cases); err != nil {
		s.logger.Error("CSV export failed", "error", err)
	}
}

// readTemplate validates and returns the uploaded Excel template from a
// multipart request.
func (s *Server) readTemplate(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	if err := r.ParseMultipartForm(export.MaxTemplateSize + 1<<20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return nil, false
	}
	file, header, err := r.FormFile("template")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "template file is required")
		return nil, false
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		file.Close()
		s.writeError(w, http.StatusUnsupportedMediaType, "Only .xlsx template files are allowed")
		return nil, false
	}
	if header.Size > export.MaxTemplateSize {
		file.Close()
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Template must be under %dMB", export.MaxTemplateSize/(1024*1024)))
		return nil, false
	}
	return file, true
}

func (s *Server) handleExportToExcel(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := s.readTemplate(w, r)
	if !ok {
		return
	}
	defer tmpl.Close()

	var rawCases []map[string]any
	if err := json.Unmarshal([]byte(r.FormValue("testCases")), &rawCases); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid testCases JSON: "+err.Error())
		return
	}
	featureName := strings.TrimSpace(r.FormValue("featureName"))
	if featureName == "" {
		featureName = "Export"
	}
	cases := make([]testcase.TestCase, len(rawCases))
	for i, raw := range rawCases {
		cases[i] = testcase.FromRaw(raw)
	}

	var buf bytes.Buffer
	if err := export.MergeIntoTemplate(&buf, tmpl, featureName, cases); err != nil {
		s.writeMergeError(w, err)
		return
	}

	w.Header().Set("Content-Type", excelContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", exportFilename(featureName)))
	_, _ = w.Write(buf.Bytes())
}

type featureCasesPayload struct {
	FeatureName string           `json:"featureName"`
	TestCases   []map[string]any `json:"testCases"`
}

func (s *Server) handleExportAllToExcel(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := s.readTemplate(w, r)
	if !ok {
		return
	}
	defer tmpl.Close()

	var payload []featureCasesPayload
	if err := json.Unmarshal([]byte(r.FormValue("testCasesByFeature")), &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid testCasesByFeature JSON: "+err.Error())
		return
	}
	if len(payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "At least one feature with test cases is required")
		return
	}

	features := make([]export.FeatureCases, len(payload))
	for i, item := range payload {
		name := strings.TrimSpace(item.FeatureName)
		if name == "" {
			name = "Feature"
		}
		cases := make([]testcase.TestCase, len(item.TestCases))
		for j, raw := range item.TestCases {
			cases[j] = testcase.FromRaw(raw)
		}
		features[i] = export.FeatureCases{FeatureName: name, Cases: cases}
	}

	var buf bytes.Buffer
	if err := export.MergeAllIntoTemplate(&buf, tmpl, features); err != nil {
		s.writeMergeError(w, err)
		return
	}

	filename := fmt.Sprintf("All_Features_Test_Cases_%s.xlsx", time.Now().UTC().Format("2006-01-02_1504"))
	w.Header().Set("Content-Type", excelContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writeMergeError(w http.ResponseWriter, err error) {
	if errors.Is(err, export.ErrNoCases) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("Template merge failed", "error", err)
	s.writeError(w, http.StatusBadRequest, "Invalid template file: "+err.Error())
}

// exportFilename builds the download name for a single-feature template
// merge: the feature name with unsafe characters replaced, plus the date.
func exportFilename(featureName string) string {
	var b strings.Builder
	for _, r := range featureName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) > 80 {
		name = name[:80]
	}
	return fmt.Sprintf("%s_Test_Cases_%s.xlsx", name, time.Now().UTC().Format("2006-01-02"))
}
