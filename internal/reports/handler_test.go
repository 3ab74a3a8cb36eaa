package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finreport-backend/internal/analysis"
)

func newReportsRouter(f fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "u1")
		c.Next()
	})
	NewHandler(f.svc, 1<<20).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUploadThenExport(t *testing.T) {
	f := newFixture()
	r := newReportsRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "q.csv", sampleCSV))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.NotEmpty(t, s.ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+s.ID+"/export?fontFamily=courier&fontSize=16", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `attachment; filename="financial-report-`)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+s.ID+"/export?fontSize=big", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+s.ID+"/chart.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+s.ID+"/narrative", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h2>Summary</h2>")
}

func TestUploadBusyConflict(t *testing.T) {
	f := newFixture()
	r := newReportsRouter(f)
	release, err := f.locks.Acquire(context.Background(), "analyze:u1", time.Minute)
	require.NoError(t, err)
	defer release()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "q.csv", sampleCSV))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "busy", decodeError(t, w).Error.Code)
}

func TestUploadAnalysisErrorVerbatim(t *testing.T) {
	f := newFixture()
	f.analyzer.err = &analysis.Error{Status: 500, Message: "Could not parse revenue column"}
	r := newReportsRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "q.csv", sampleCSV))
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "analysis_failed", body.Error.Code)
	assert.Equal(t, "Could not parse revenue column", body.Error.Message)
}

func TestUploadUnsupportedFormat(t *testing.T) {
	f := newFixture()
	r := newReportsRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "q.pdf", "%PDF-1.4"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unsupported file format", decodeError(t, w).Error.Message)
	assert.Zero(t, f.analyzer.calls)
}

func TestChartNoContent(t *testing.T) {
	f := newFixture()
	f.analyzer.data.ChartData = nil
	r := newReportsRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "q.csv", sampleCSV))
	require.Equal(t, http.StatusCreated, w.Code)
	var s Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+s.ID+"/chart.png", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestExportClientHeldReport(t *testing.T) {
	f := newFixture()
	r := newReportsRouter(f)

	payload, err := json.Marshal(map[string]any{
		"report":   sampleReport(),
		"settings": map[string]any{"fontFamily": "times", "fontSize": 10},
	})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/export", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/reports/export", strings.NewReader(`{"report":{},"settings":{"fontFamily":"comic"}}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUnknownReport(t *testing.T) {
	r := newReportsRouter(newFixture())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
