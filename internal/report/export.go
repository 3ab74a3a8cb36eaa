package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin = 20.0

	reportTitle    = "Financial MD&A Report"
	metricsHeading = "Key Metrics"
	mdaHeading     = "Management Discussion & Analysis"

	// EmptyNarrative stands in for a blank narrative.
	EmptyNarrative = "No report content available."
)

// LineKind classifies a placed line.
type LineKind string

const (
	KindTitle   LineKind = "title"
	KindDate    LineKind = "date"
	KindHeading LineKind = "heading"
	KindMetric  LineKind = "metric"
	KindBody    LineKind = "body"
)

// PlacedLine records where a line of text was drawn. Y is the baseline in mm.
type PlacedLine struct {
	Page     int
	Y        float64
	Text     string
	FontSize float64
	Kind     LineKind
}

// Document is a rendered PDF held in memory.
type Document struct {
	FileName string
	Bytes    []byte
	Pages    int
	Lines    []PlacedLine
}

// Exporter renders report data to PDF.
type Exporter struct {
	now func() time.Time
}

func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// FileName returns the download name for a report generated at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("financial-report-%s.pdf", t.UTC().Format("2006-01-02"))
}

// Export lays out the report on A4 pages. Settings are validated before
// anything is drawn and no bytes are returned on failure.
func (e *Exporter) Export(data ReportData, settings ExportSettings) (*Document, error) {
	settings, err := settings.Normalize()
	if err != nil {
		return nil, err
	}
	now := e.now()
	base := float64(settings.FontSize)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.SetCreator("finreport", false)
	pdf.SetTitle(reportTitle, false)
	pdf.SetCreationDate(now)
	pdf.SetFont(settings.FontFamily, "", base)
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	l := &layout{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		limit:  pageHeight - pageMargin,
		y:      pageMargin,
		margin: pageMargin,
	}

	l.place(reportTitle, KindTitle, base+6, 15)
	l.place("Generated on: "+now.Format("1/2/2006"), KindDate, base-2, 10)
	l.heading(metricsHeading, base+2, 10)
	for _, line := range MetricLines(data) {
		l.place(line, KindMetric, base, 8)
	}
	l.y += 5
	l.heading(mdaHeading, base+2, 10)

	narrative := data.MarkdownReport
	if narrative == "" {
		narrative = EmptyNarrative
	}
	pdf.SetFontSize(base)
	for _, line := range wrapText(narrative, pageWidth-2*pageMargin, l.measure) {
		l.place(line, KindBody, base, 6)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	return &Document{
		FileName: FileName(now),
		Bytes:    buf.Bytes(),
		Pages:    pdf.PageCount(),
		Lines:    l.lines,
	}, nil
}

type layout struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	limit  float64
	margin float64
	y      float64
	lines  []PlacedLine
}

func (l *layout) measure(s string) float64 {
	return l.pdf.GetStringWidth(l.tr(s))
}

// place starts a new page when the cursor is past the bottom margin, draws
// text at the cursor and advances it.
func (l *layout) place(text string, kind LineKind, size, advance float64) {
	if l.y > l.limit {
		l.newPage()
	}
	l.draw(text, kind, size, advance)
}

// heading keeps the heading on the same page as the line that follows it.
func (l *layout) heading(text string, size, advance float64) {
	if l.y > l.limit || l.y+advance > l.limit {
		l.newPage()
	}
	l.draw(text, KindHeading, size, advance)
}

func (l *layout) draw(text string, kind LineKind, size, advance float64) {
	l.pdf.SetFontSize(size)
	l.pdf.Text(l.margin, l.y, l.tr(text))
	l.lines = append(l.lines, PlacedLine{
		Page:     l.pdf.PageNo(),
		Y:        l.y,
		Text:     text,
		FontSize: size,
		Kind:     kind,
	})
	l.y += advance
}

func (l *layout) newPage() {
	l.pdf.AddPage()
	l.y = l.margin
}

// wrapText breaks text into lines no wider than width. Explicit newlines are
// kept and words wider than a line are split by character.
func wrapText(text string, width float64, measure func(string) float64) []string {
	var out []string
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, word := range words {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if measure(candidate) <= width {
				line = candidate
				continue
			}
			if line != "" {
				out = append(out, line)
			}
			for measure(word) > width {
				head, tail := splitToWidth(word, width, measure)
				if tail == "" {
					break
				}
				out = append(out, head)
				word = tail
			}
			line = word
		}
		out = append(out, line)
	}
	return out
}

func splitToWidth(word string, width float64, measure func(string) float64) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && measure(string(runes[:n+1])) <= width {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}
