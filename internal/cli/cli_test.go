package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const analysisJSON = `{"yoy_change":12.345,"qoq_change":-3.2,"total_revenue":1500000,
"chart_data":{"type":"bar","series":["revenue"],"data":[{"period":"Q1","revenue":100},{"period":"Q2","revenue":120}]},
"markdown_report":"## Outlook\n\nRevenue grew steadily."}`

func analysisServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			w.WriteHeader(http.StatusOK)
		case "/api/analyze":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(analysisJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "revenue.csv")
	require.NoError(t, os.WriteFile(path, []byte("period,revenue\nQ1,100\nQ2,120\n"), 0o644))
	return path
}

func TestAnalyzeWritesPDFChartAndJSON(t *testing.T) {
	srv := analysisServer(t)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	output, err := run(t, "analyze", writeCSV(t, dir), "--api-url", srv.URL, "--out", outDir, "--chart", "--json", "--plain")
	require.NoError(t, err)
	assert.Contains(t, output, "Columns: period, revenue")
	assert.Contains(t, output, "YoY Revenue Change: 12.35%")
	assert.Contains(t, output, "Total Revenue: $1,500,000")
	assert.Contains(t, output, "Revenue grew steadily.")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var pdfs, pngs, jsons int
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".pdf":
			pdfs++
		case ".png":
			pngs++
		case ".json":
			jsons++
		}
	}
	assert.Equal(t, 1, pdfs)
	assert.Equal(t, 1, pngs)
	assert.Equal(t, 1, jsons)
}

func TestExportThenInspectRoundTrip(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(analysisJSON), 0o644))

	output, err := run(t, "export", reportPath, "--out", dir, "--font-family", "times", "--font-size", "14")
	require.NoError(t, err)
	assert.Contains(t, output, "1 page(s)")

	matches, err := filepath.Glob(filepath.Join(dir, "financial-report-*.pdf"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	output, err = run(t, "inspect", matches[0])
	require.NoError(t, err)
	assert.Contains(t, output, "Key Metrics")
	assert.Contains(t, output, "-3.20%")
}

func TestExportRejectsBadSettingsWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(analysisJSON), 0o644))

	_, err := run(t, "export", reportPath, "--out", dir, "--font-size", "13")
	require.Error(t, err)
	matches, _ := filepath.Glob(filepath.Join(dir, "*.pdf"))
	assert.Empty(t, matches)
}

func TestAnalyzeUnsupportedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	_, err := run(t, "analyze", path, "--api-url", "http://127.0.0.1:1", "--out", dir)
	require.Error(t, err)
	assert.Equal(t, "Unsupported file format", err.Error())
}

func TestConfigFileAndHealth(t *testing.T) {
	srv := analysisServer(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "reportctl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("api_base_url: "+srv.URL+"\ntimeout: 5s\n"), 0o644))

	output, err := run(t, "health", "--config", cfgPath)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(output), ": ok"))
}
