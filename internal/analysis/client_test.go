package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSendsMultipartAndDecodes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analyze", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		assert.Equal(t, "q1.csv", header.Filename)
		assert.Equal(t, "period,revenue\nQ1,10\n", string(raw))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"yoy_change":12.345,"qoq_change":-3.2,"total_revenue":1500000,
			"chart_data":{"type":"bar","series":["revenue"],"data":[{"period":"Q1","revenue":10}]},
			"markdown_report":"## Summary","citations":[]}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/"})
	data, err := c.Analyze(context.Background(), "q1.csv", strings.NewReader("period,revenue\nQ1,10\n"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.NotNil(t, data.YoYChange)
	assert.Equal(t, 12.345, *data.YoYChange)
	assert.Equal(t, "## Summary", data.MarkdownReport)
	require.NotNil(t, data.ChartData)
	assert.Equal(t, []string{"revenue"}, data.ChartData.Series)
}

func TestAnalyzeErrorUsesDetail(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Unsupported file format"}`)
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Analyze(context.Background(), "x.txt", strings.NewReader("x"))
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, http.StatusBadRequest, aerr.Status)
	assert.Equal(t, "Unsupported file format", aerr.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "no retry")
}

func TestAnalyzeErrorFallsBackToGenericMessage(t *testing.T) {
	for _, body := range []string{`{"detail":[{"msg":"field required"}]}`, `<html>oops</html>`, `{"detail":""}`, ``} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, body)
		}))

		_, err := New(Options{BaseURL: srv.URL}).Analyze(context.Background(), "a.csv", strings.NewReader("a"))
		var aerr *Error
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, http.StatusInternalServerError, aerr.Status)
		assert.Equal(t, "Failed to generate report", aerr.Message)
		srv.Close()
	}
}

func TestAnalyzeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(Options{BaseURL: url}).Analyze(context.Background(), "a.csv", strings.NewReader("a"))
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Zero(t, aerr.Status)
	assert.NotEmpty(t, aerr.Message)
	assert.NotEqual(t, "Failed to generate report", aerr.Message)
}

func TestAnalyzeHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := New(Options{BaseURL: srv.URL}).Analyze(ctx, "a.csv", strings.NewReader("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"status":"healthy"}`)
	}))
	defer srv.Close()

	assert.NoError(t, New(Options{BaseURL: srv.URL}).Health(context.Background()))
	assert.Error(t, New(Options{BaseURL: srv.URL + "/nope"}).Health(context.Background()))
}
