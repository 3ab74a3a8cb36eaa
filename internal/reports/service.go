package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"finreport-backend/internal/chart"
	"finreport-backend/internal/extract"
	"finreport-backend/internal/report"
	"finreport-backend/internal/shared/lock"
	"finreport-backend/internal/shared/metrics"
	"finreport-backend/internal/shared/telemetry"
	"finreport-backend/internal/shared/util"
	"finreport-backend/internal/usage"
)

const (
	DefaultSessionTTL = time.Hour
	DefaultLockTTL    = 2 * time.Minute
)

// ErrExportFailed wraps rendering failures during export.
var ErrExportFailed = errors.New("export failed")

// Analyzer sends an upload to the analysis API.
type Analyzer interface {
	Analyze(ctx context.Context, fileName string, r io.Reader) (report.ReportData, error)
}

// Allowance meters analyses per user.
type Allowance interface {
	CanConsume(ctx context.Context, userID string, n int) (bool, usage.Usage, error)
	Consume(ctx context.Context, userID string, n int) (usage.Usage, error)
}

type Options struct {
	SessionTTL time.Duration
	LockTTL    time.Duration
}

// Service runs the upload, analyze, display and export flow.
type Service struct {
	analyzer  Analyzer
	allowance Allowance
	sessions  SessionStore
	locks     lock.Locker
	exporter  *report.Exporter
	charts    *chart.Renderer
	markdown  goldmark.Markdown
	opts      Options
	now       func() time.Time
}

func NewService(analyzer Analyzer, allowance Allowance, sessions SessionStore, locks lock.Locker, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Service{
		analyzer:  analyzer,
		allowance: allowance,
		sessions:  sessions,
		locks:     locks,
		exporter:  report.NewExporter(),
		charts:    chart.NewRenderer(),
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		opts:      opts,
		now:       time.Now,
	}
}

// Analyze inspects the upload, checks the allowance, calls the analysis API
// and stores the result as a session. One analysis per user runs at a time.
func (s *Service) Analyze(ctx context.Context, uid, fileName string, r io.Reader) (Session, error) {
	release, err := s.acquire(ctx, "analyze:"+uid)
	if err != nil {
		return Session{}, err
	}
	defer release()

	fileName, err = util.SanitizeFileName(fileName)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", extract.ErrUnsupported, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Session{}, fmt.Errorf("read upload: %w", err)
	}
	inspection, err := extract.Inspect(ctx, fileName, data)
	if err != nil {
		return Session{}, err
	}

	ok, _, err := s.allowance.CanConsume(ctx, uid, 1)
	if err != nil {
		return Session{}, fmt.Errorf("check allowance: %w", err)
	}
	if !ok {
		return Session{}, usage.ErrLimitReached
	}

	start := s.now()
	metrics.AnalysisStarted()
	result, err := s.analyzer.Analyze(ctx, fileName, bytes.NewReader(data))
	metrics.AnalysisFinished(err == nil, float64(s.now().Sub(start).Milliseconds()))
	if err != nil {
		return Session{}, err
	}
	u, err := s.allowance.Consume(ctx, uid, 1)
	if err != nil {
		return Session{}, fmt.Errorf("consume allowance: %w", err)
	}

	now := s.now().UTC()
	plan, hasPlan := chart.BuildPlan(result.ChartData)
	session := Session{
		ID:        uuid.NewString(),
		UserID:    uid,
		Upload:    inspection,
		Report:    result,
		Metrics:   report.MetricLines(result),
		HasChart:  hasPlan && !plan.Empty(),
		Remaining: u.Remaining(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}
	if err := s.sessions.Save(ctx, session, s.opts.SessionTTL); err != nil {
		return Session{}, fmt.Errorf("save report session: %w", err)
	}
	telemetry.Info("reports.analyzed", map[string]any{
		"user_id":     uid,
		"report_id":   session.ID,
		"format":      inspection.Format,
		"bytes":       inspection.Size,
		"duration_ms": s.now().Sub(start).Milliseconds(),
	})
	return session, nil
}

// Get loads a session owned by uid.
func (s *Service) Get(ctx context.Context, uid, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, ErrNotFound
	}
	session, err := s.sessions.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if session.UserID != uid {
		return Session{}, ErrNotFound
	}
	return session, nil
}

// Chart renders the session's chart as PNG. Nil bytes mean no chart.
func (s *Service) Chart(ctx context.Context, uid, id string) ([]byte, error) {
	session, err := s.Get(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	return s.charts.Render(session.Report.ChartData)
}

// Narrative renders the narrative markdown as HTML. Raw HTML in the source
// is dropped.
func (s *Service) Narrative(ctx context.Context, uid, id string) (string, error) {
	session, err := s.Get(ctx, uid, id)
	if err != nil {
		return "", err
	}
	source := session.Report.MarkdownReport
	if source == "" {
		source = report.EmptyNarrative
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render narrative: %w", err)
	}
	return buf.String(), nil
}

// Export renders the session as a PDF.
func (s *Service) Export(ctx context.Context, uid, id string, settings report.ExportSettings) (*report.Document, error) {
	session, err := s.Get(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	return s.export(ctx, uid, id, session.Report, settings)
}

// ExportData renders a report the client holds rather than a stored session.
func (s *Service) ExportData(ctx context.Context, uid string, data report.ReportData, settings report.ExportSettings) (*report.Document, error) {
	return s.export(ctx, uid, "", data, settings)
}

func (s *Service) export(ctx context.Context, uid, id string, data report.ReportData, settings report.ExportSettings) (*report.Document, error) {
	release, err := s.acquire(ctx, "export:"+uid)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.exporter.Export(data, settings)
	if err != nil {
		if errors.Is(err, report.ErrInvalidSettings) {
			return nil, err
		}
		metrics.ExportFinished(false, 0)
		telemetry.Error("reports.export_failed", map[string]any{
			"user_id":   uid,
			"report_id": id,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	metrics.ExportFinished(true, doc.Pages)
	telemetry.Info("reports.exported", map[string]any{
		"user_id":   uid,
		"report_id": id,
		"pages":     doc.Pages,
		"bytes":     len(doc.Bytes),
	})
	return doc, nil
}

func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	release, err := lock.AcquireRenewing(ctx, s.locks, key, s.opts.LockTTL)
	if errors.Is(err, lock.ErrBusy) {
		metrics.BusyRejected()
	}
	return release, err
}
