package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/c360studio/casegen/dedup"
	"github.com/c360studio/casegen/generate"
	"github.com/c360studio/casegen/llm"
	"github.com/c360studio/casegen/llm/testutil"
	"github.com/c360studio/casegen/testcase"
)

func scenariosJSON(titles ...string) string {
	out, _ := json.Marshal(map[string][]string{"scenarios": titles})
	return string(out)
}

func casesJSON(titles ...string) string {
	cases := make([]map[string]any, len(titles))
	for i, title := range titles {
		cases[i] = map[string]any{
			"test_scenario":    title,
			"test_description": "validates " + title,
			"pre_condition":    "ready",
			"test_data":        "inputs",
			"test_steps":       []string{"1. act", "2. verify"},
			"expected_result":  "outcome " + title,
		}
	}
	out, _ := json.Marshal(map[string]any{"test_cases": cases})
	return string(out)
}

// happyGenerator answers every extraction with five scenarios and every
// expansion with two cases.
func happyGenerator() generate.Generator {
	return testutil.GeneratorFunc(func(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
		if strings.Contains(prompt, "Convert each listed scenario") {
			return casesJSON("case one", "case two"), nil
		}
		return scenariosJSON("s1", "s2", "s3", "s4", "s5"), nil
	})
}

func newTestServer(gen generate.Generator) *Server {
	pipeline := generate.NewPipeline(gen, dedup.NewEngine(), generate.WithExpansionDelay(time.Millisecond))
	svc := generate.NewService(pipeline, testcase.NewStore(), nil)
	return NewServer(svc, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doJSON(t, newTestServer(happyGenerator()), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := doJSON(t, newTestServer(happyGenerator()), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGenerateEndpoint(t *testing.T) {
	srv := newTestServer(happyGenerator())
	rec := doJSON(t, srv, http.MethodPost, "/api/testcases/generate-test-cases", map[string]any{
		"feature_name":        "Login",
		"feature_description": "login form",
		"coverage_level":      "low",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Items []testcase.TestCase `json:"items"`
		Total int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Items), resp.Total)
	require.NotEmpty(t, resp.Items)
	assert.NotEqual(t, "", resp.Items[0].Scenario)

	// Generated cases are retrievable afterwards.
	rec = doJSON(t, srv, http.MethodGet, "/api/testcases/"+resp.Items[0].ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateValidation(t *testing.T) {
	srv := newTestServer(happyGenerator())

	rec := doJSON(t, srv, http.MethodPost, "/api/testcases/generate-test-cases", map[string]any{
		"feature_name": "Login",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing description")

	req := httptest.NewRequest(http.MethodPost, "/api/testcases/generate-test-cases",
		strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestGenerateDeprecatedNumberOfCases(t *testing.T) {
	var levels []string
	gen := testutil.GeneratorFunc(func(_ context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
		levels = append(levels, opts.CoverageLevel)
		if strings.Contains(prompt, "Convert each listed scenario") {
			return casesJSON("one"), nil
		}
		return scenariosJSON("s1", "s2", "s3", "s4", "s5"), nil
	})
	srv := newTestServer(gen)

	rec := doJSON(t, srv, http.MethodPost, "/api/testcases/generate-test-cases", map[string]any{
		"feature_name":        "Login",
		"feature_description": "login form",
		"number_of_cases":     4,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, levels)
	for _, level := range levels {
		assert.Equal(t, "low", level, "number_of_cases <= 5 maps to low coverage")
	}

	// The deprecated field wins over an explicit coverage_level.
	levels = nil
	rec = doJSON(t, srv, http.MethodPost, "/api/testcases/generate-test-cases", map[string]any{
		"feature_name":        "Login",
		"feature_description": "login form",
		"coverage_level":      "comprehensive",
		"number_of_cases":     4,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, levels)
	for _, level := range levels {
		assert.Equal(t, "low", level)
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	authGen := testutil.GeneratorFunc(func(context.Context, string, llm.GenerateOptions) (string, error) {
		return "", llm.NewAuthError(errors.New("missing API key"))
	})
	rec := doJSON(t, newTestServer(authGen), http.MethodPost, "/api/testcases/generate-test-cases", map[string]any{
		"feature_name":        "X",
		"feature_description": "Y",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "auth failures are the client's configuration problem")

	garbageGen := testutil.GeneratorFunc(func(context.Context, string, llm.GenerateOptions) (string, error) {
		return "not json at all", nil
	})
	rec = doJSON(t, newTestServer(garbageGen), http.MethodPost, "/api/testcases/generate-test-cases", map[string]any{
		"feature_name":        "X",
		"feature_description": "Y",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code, "malformed model output is a gateway problem")

	transientGen := testutil.GeneratorFunc(func(context.Context, string, llm.GenerateOptions) (string, error) {
		return "", llm.NewTransientError(errors.New("rate limited"))
	})
	rec = doJSON(t, newTestServer(transientGen), http.MethodPost, "/api/testcases/generate-test-cases", map[string]any{
		"feature_name":        "X",
		"feature_description": "Y",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFromRequirements(t *testing.T) {
	srv := newTestServer(happyGenerator())
	rec := doJSON(t, srv, http.MethodPost, "/api/testcases/from-requirements", map[string]any{
		"component":    "cart",
		"requirements": []string{"first requirement", "second requirement"},
		"max_cases":    10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []testcase.TestCase `json:"items"`
		Total int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "[cart] Requirement 1", resp.Items[0].Scenario)

	rec = doJSON(t, srv, http.MethodPost, "/api/testcases/from-requirements", map[string]any{
		"component": "cart",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "requirements are required")
}

func TestGetDeleteTestCase(t *testing.T) {
	srv := newTestServer(happyGenerator())
	rec := doJSON(t, srv, http.MethodPost, "/api/testcases/from-requirements", map[string]any{
		"component":    "cart",
		"requirements": []string{"req"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []testcase.TestCase `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id := resp.Items[0].ID.String()

	assert.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/testcases/"+id, nil).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(t, srv, http.MethodDelete, "/api/testcases/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, srv, http.MethodGet, "/api/testcases/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, srv, http.MethodDelete, "/api/testcases/"+id, nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, srv, http.MethodGet, "/api/testcases/not-a-uuid", nil).Code)
}

func TestCSVFilenameEndpoint(t *testing.T) {
	rec := doJSON(t, newTestServer(happyGenerator()), http.MethodGet,
		"/api/testcases/csv-filename?feature_name=Login+Page", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Regexp(t, `^tc_login_page_\d{8}_\d{6}_[0-9a-f]{6}\.csv$`, resp["filename"])
}

func startBatch(t *testing.T, srv *Server) string {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/testcases/batch-generate", map[string]any{
		"features": []map[string]any{
			{"feature_name": "Alpha", "feature_description": "first", "coverage_level": "low"},
			{"feature_name": "Beta", "feature_description": "second", "coverage_level": "low"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["batch_id"])
	return resp["batch_id"]
}

func waitForBatchDone(t *testing.T, srv *Server, batchID string) generate.BatchSnapshot {
	t.Helper()
	var snap generate.BatchSnapshot
	require.Eventually(t, func() bool {
		rec := doJSON(t, srv, http.MethodGet, "/api/testcases/batches/"+batchID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			return false
		}
		return snap.Status != generate.BatchRunning
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func TestBatchLifecycle(t *testing.T) {
	srv := newTestServer(happyGenerator())
	batchID := startBatch(t, srv)

	snap := waitForBatchDone(t, srv, batchID)
	assert.Equal(t, generate.BatchCompleted, snap.Status)
	require.Len(t, snap.Features, 2)

	rec := doJSON(t, srv, http.MethodGet, "/api/testcases/batches/"+batchID+"/export-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Greater(t, len(records), 1)

	rec = doJSON(t, srv, http.MethodPost,
		fmt.Sprintf("/api/testcases/batches/%s/features/%s/retry", batchID, snap.Features[0].FeatureID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchNotFound(t *testing.T) {
	srv := newTestServer(happyGenerator())
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, srv, http.MethodGet, "/api/testcases/batches/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, srv, http.MethodGet, "/api/testcases/batches/missing/export-all", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, srv, http.MethodPost, "/api/testcases/batches/missing/features/x/retry", nil).Code)
}

func TestBatchGenerateRequiresFeatures(t *testing.T) {
	rec := doJSON(t, newTestServer(happyGenerator()), http.MethodPost,
		"/api/testcases/batch-generate", map[string]any{"features": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func buildTemplateFile(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Summary"))
	_, err := f.NewSheet("Test Cases")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Test Cases", "A1", "Inventory"))
	require.NoError(t, f.SetCellValue("Test Cases", "A2", "No."))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, template []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("template", filename)
	require.NoError(t, err)
	_, err = part.Write(template)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestExportToExcel(t *testing.T) {
	srv := newTestServer(happyGenerator())
	cases := `[{"test_scenario":"Valid login","test_description":"d","pre_condition":"p","test_data":"td","test_steps":["1. go"],"expected_result":"ok"}]`

	body, contentType := multipartBody(t, "template.xlsx", buildTemplateFile(t), map[string]string{
		"testCases":   cases,
		"featureName": "Login Page",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/testcases/export-to-excel", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, excelContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Test Cases")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, "TC_LOGIN_001", rows[2][1])
	assert.Equal(t, "Valid login", rows[2][2])
}

func TestExportToExcelRejectsBadUploads(t *testing.T) {
	srv := newTestServer(happyGenerator())

	body, contentType := multipartBody(t, "template.docx", []byte("nope"), map[string]string{
		"testCases":   "[]",
		"featureName": "x",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/testcases/export-to-excel", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	body, contentType = multipartBody(t, "template.xlsx", buildTemplateFile(t), map[string]string{
		"testCases":   "{not an array",
		"featureName": "x",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/testcases/export-to-excel", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = multipartBody(t, "template.xlsx", buildTemplateFile(t), map[string]string{
		"testCases":   "[]",
		"featureName": "x",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/testcases/export-to-excel", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing to export")
}

func TestExportAllToExcel(t *testing.T) {
	srv := newTestServer(happyGenerator())
	payload := `[
		{"featureName":"Login Page","testCases":[{"test_scenario":"a","test_steps":["1. x"],"expected_result":"r"}]},
		{"featureName":"Helper Management","testCases":[{"test_scenario":"b","test_steps":["1. y"],"expected_result":"r"}]}
	]`

	body, contentType := multipartBody(t, "template.xlsx", buildTemplateFile(t), map[string]string{
		"testCasesByFeature": payload,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/testcases/export-all-to-excel", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Test Cases")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 4)
	assert.Equal(t, "TC_LOGIN_001", rows[2][1])
	assert.Equal(t, "TC_HM_001", rows[3][1])
	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, "2", rows[3][0])
}
