package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysesStarted   atomic.Uint64
	analysesCompleted atomic.Uint64
	analysesFailed    atomic.Uint64
	exportsCompleted  atomic.Uint64
	exportsFailed     atomic.Uint64
	busyRejected      atomic.Uint64

	analysisLatency = newHistogram([]float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000})
	exportPages     = newHistogram([]float64{1, 2, 3, 5, 10, 20})
)

// AnalysisStarted counts an upload handed to the analysis API.
func AnalysisStarted() { analysesStarted.Add(1) }

// AnalysisFinished records the outcome and latency of an analysis call.
func AnalysisFinished(ok bool, latencyMs float64) {
	if ok {
		analysesCompleted.Add(1)
	} else {
		analysesFailed.Add(1)
	}
	if latencyMs < 0 {
		latencyMs = 0
	}
	analysisLatency.Observe(latencyMs)
}

// ExportFinished records a PDF export. pages is ignored on failure.
func ExportFinished(ok bool, pages int) {
	if !ok {
		exportsFailed.Add(1)
		return
	}
	exportsCompleted.Add(1)
	exportPages.Observe(float64(pages))
}

// BusyRejected counts requests turned away because the user's lock was held.
func BusyRejected() { busyRejected.Add(1) }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "finreport_analyses_started_total", "Analyses sent to the analysis API", analysesStarted.Load())
	writeCounter(&buf, "finreport_analyses_completed_total", "Analyses that returned a report", analysesCompleted.Load())
	writeCounter(&buf, "finreport_analyses_failed_total", "Analyses that failed", analysesFailed.Load())
	writeCounter(&buf, "finreport_exports_completed_total", "PDF exports written", exportsCompleted.Load())
	writeCounter(&buf, "finreport_exports_failed_total", "PDF exports that failed", exportsFailed.Load())
	writeCounter(&buf, "finreport_busy_rejected_total", "Requests rejected while an operation was in progress", busyRejected.Load())
	writeHistogram(&buf, "finreport_analysis_latency_ms", "Analysis API latency in milliseconds", analysisLatency.snapshot())
	writeHistogram(&buf, "finreport_export_pages", "Pages per exported PDF", exportPages.snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	bounds  []float64
	counts  []uint64
	sum     float64
	samples uint64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, counts: make([]uint64, len(bounds))}
}

// Observe adds v to the first bucket whose bound it does not exceed.
func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples++
	h.sum += v
	for i, bound := range h.bounds {
		if v <= bound {
			h.counts[i]++
			return
		}
	}
}

type histogramSnapshot struct {
	bounds  []float64
	counts  []uint64
	sum     float64
	samples uint64
}

func (h *histogram) snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		bounds:  append([]float64(nil), h.bounds...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		samples: h.samples,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

// writeHistogram emits cumulative buckets.
func writeHistogram(buf *bytes.Buffer, name, help string, h histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s histogram\n", name, help, name)
	var cumulative uint64
	for i, bound := range h.bounds {
		cumulative += h.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=%q} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, h.samples)
	fmt.Fprintf(buf, "%s_sum %s\n%s_count %d\n", name, formatFloat(h.sum), name, h.samples)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
