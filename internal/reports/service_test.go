package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finreport-backend/internal/analysis"
	"finreport-backend/internal/report"
	"finreport-backend/internal/shared/lock"
	"finreport-backend/internal/usage"
)

type fakeAnalyzer struct {
	data  report.ReportData
	err   error
	calls int
	got   []byte
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, fileName string, r io.Reader) (report.ReportData, error) {
	f.calls++
	f.got, _ = io.ReadAll(r)
	if f.err != nil {
		return report.ReportData{}, f.err
	}
	return f.data, nil
}

func ptr(v float64) *float64 { return &v }

func sampleReport() report.ReportData {
	return report.ReportData{
		YoYChange:    ptr(12.345),
		QoQChange:    ptr(-3.2),
		TotalRevenue: ptr(1500000),
		ChartData: &report.ChartSpec{
			Type:   "bar",
			Series: []string{"revenue", "costs"},
			Data:   json.RawMessage(`[{"period":"Q1","revenue":100,"costs":60},{"period":"Q2","revenue":120,"costs":70}]`),
		},
		MarkdownReport: "## Summary\n\nRevenue **grew**.\n\n<script>alert(1)</script>",
	}
}

const sampleCSV = "period,revenue\nQ1,100\nQ2,120\n"

type fixture struct {
	svc      *Service
	analyzer *fakeAnalyzer
	usage    *usage.Service
	locks    *lock.Memory
}

func newFixture() fixture {
	analyzer := &fakeAnalyzer{data: sampleReport()}
	allowance := usage.NewService()
	locks := lock.NewMemory()
	svc := NewService(analyzer, allowance, NewMemorySessions(), locks, Options{})
	return fixture{svc: svc, analyzer: analyzer, usage: allowance, locks: locks}
}

func TestAnalyzeStoresSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s, err := f.svc.Analyze(ctx, "u1", "q.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "csv", s.Upload.Format)
	require.NotNil(t, s.Upload.Preview)
	assert.Equal(t, []string{"period", "revenue"}, s.Upload.Preview.Columns)
	assert.Equal(t, []string{
		"YoY Revenue Change: 12.35%",
		"QoQ Revenue Change: -3.20%",
		"Total Revenue: $1,500,000",
	}, s.Metrics)
	assert.True(t, s.HasChart)
	assert.Equal(t, 9, s.Remaining)
	assert.Equal(t, []byte(sampleCSV), f.analyzer.got)

	loaded, err := f.svc.Get(ctx, "u1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)

	_, err = f.svc.Get(ctx, "someone-else", s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyzeRejectsUnsupportedBeforeRemoteCall(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Analyze(context.Background(), "u1", "notes.txt", strings.NewReader("hello"))
	require.Error(t, err)
	assert.Equal(t, "Unsupported file format", err.Error())
	assert.Zero(t, f.analyzer.calls)
}

func TestAnalyzeBusyWhileHeld(t *testing.T) {
	f := newFixture()
	release, err := f.locks.Acquire(context.Background(), "analyze:u1", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	assert.ErrorIs(t, err, lock.ErrBusy)
	assert.Zero(t, f.analyzer.calls)

	release()
	_, err = f.svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	assert.NoError(t, err)
}

func TestAnalyzeStopsAtLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.usage.Consume(ctx, "u1", usage.DefaultLimit)
	require.NoError(t, err)

	_, err = f.svc.Analyze(ctx, "u1", "q.csv", strings.NewReader(sampleCSV))
	assert.ErrorIs(t, err, usage.ErrLimitReached)
	assert.Zero(t, f.analyzer.calls)
}

func TestAnalyzeFailureDoesNotConsume(t *testing.T) {
	f := newFixture()
	f.analyzer.err = &analysis.Error{Status: 422, Message: "Invalid spreadsheet"}

	_, err := f.svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	var aerr *analysis.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "Invalid spreadsheet", aerr.Message)

	u, err := f.usage.EnsurePeriod(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, u.Used)
}

func TestNarrativeRendersMarkdownWithoutRawHTML(t *testing.T) {
	f := newFixture()
	s, err := f.svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	html, err := f.svc.Narrative(context.Background(), "u1", s.ID)
	require.NoError(t, err)
	assert.Contains(t, html, "<h2>Summary</h2>")
	assert.Contains(t, html, "<strong>grew</strong>")
	assert.NotContains(t, html, "<script>")
}

func TestNarrativePlaceholder(t *testing.T) {
	f := newFixture()
	f.analyzer.data = report.ReportData{}
	s, err := f.svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.False(t, s.HasChart)

	html, err := f.svc.Narrative(context.Background(), "u1", s.ID)
	require.NoError(t, err)
	assert.Contains(t, html, report.EmptyNarrative)
}

func TestChart(t *testing.T) {
	f := newFixture()
	s, err := f.svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	png, err := f.svc.Chart(context.Background(), "u1", s.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	f.analyzer.data = report.ReportData{MarkdownReport: "x"}
	s2, err := f.svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	png, err = f.svc.Chart(context.Background(), "u1", s2.ID)
	require.NoError(t, err)
	assert.Nil(t, png)
}

func TestExport(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.Analyze(ctx, "u1", "q.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	doc, err := f.svc.Export(ctx, "u1", s.ID, report.ExportSettings{FontFamily: "Times", FontSize: 14})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Bytes, []byte("%PDF")))
	assert.Regexp(t, `^financial-report-\d{4}-\d{2}-\d{2}\.pdf$`, doc.FileName)

	_, err = f.svc.Export(ctx, "u1", s.ID, report.ExportSettings{FontSize: 13})
	assert.ErrorIs(t, err, report.ErrInvalidSettings)

	_, err = f.svc.Export(ctx, "u2", s.ID, report.DefaultSettings())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportBusyWhileHeld(t *testing.T) {
	f := newFixture()
	release, err := f.locks.Acquire(context.Background(), "export:u1", time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.ExportData(context.Background(), "u1", sampleReport(), report.DefaultSettings())
	assert.ErrorIs(t, err, lock.ErrBusy)
}

type gatedAnalyzer struct {
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedAnalyzer) Analyze(ctx context.Context, fileName string, r io.Reader) (report.ReportData, error) {
	close(g.entered)
	<-g.gate
	return sampleReport(), nil
}

func TestAnalyzeHoldOutlivesLockTTL(t *testing.T) {
	analyzer := &gatedAnalyzer{entered: make(chan struct{}), gate: make(chan struct{})}
	svc := NewService(analyzer, usage.NewService(), NewMemorySessions(), lock.NewMemory(), Options{LockTTL: 30 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
		done <- err
	}()
	<-analyzer.entered

	time.Sleep(100 * time.Millisecond)
	_, err := svc.Analyze(context.Background(), "u1", "q.csv", strings.NewReader(sampleCSV))
	assert.ErrorIs(t, err, lock.ErrBusy)

	close(analyzer.gate)
	require.NoError(t, <-done)
}
