package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ReportData is the analysis result as returned by the analysis API.
// Metrics are nil when the API omitted them.
type ReportData struct {
	YoYChange      *float64        `json:"yoy_change,omitempty"`
	QoQChange      *float64        `json:"qoq_change,omitempty"`
	TotalRevenue   *float64        `json:"total_revenue,omitempty"`
	ChartData      *ChartSpec      `json:"chart_data,omitempty"`
	MarkdownReport string          `json:"markdown_report"`
	Citations      json.RawMessage `json:"citations,omitempty"`
}

// ChartSpec describes a chart. Data is kept raw since the API does not
// guarantee it is a list.
type ChartSpec struct {
	Type   string          `json:"type"`
	Series []string        `json:"series"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Record is one data point keyed by "period" and series names.
type Record map[string]any

// HasData reports whether data is present and not null.
func (c *ChartSpec) HasData() bool {
	if c == nil {
		return false
	}
	trimmed := bytes.TrimSpace(c.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Records decodes Data as a list of objects. Anything else yields an empty list.
func (c *ChartSpec) Records() []Record {
	if !c.HasData() {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(c.Data, &raw); err != nil {
		return []Record{}
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil || rec == nil {
			rec = Record{}
		}
		out = append(out, rec)
	}
	return out
}

// Period returns the x label of the record.
func (r Record) Period() string {
	switch v := r["period"].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Value returns the numeric value of series, or false when it is missing
// or not a number.
func (r Record) Value(series string) (float64, bool) {
	v, ok := r[series].(float64)
	return v, ok
}

// ExportSettings are the user-chosen PDF options.
type ExportSettings struct {
	FontFamily string `json:"fontFamily"`
	FontSize   int    `json:"fontSize"`
}

var ErrInvalidSettings = errors.New("invalid export settings")

var (
	FontFamilies = []string{"helvetica", "times", "courier"}
	FontSizes    = []int{10, 12, 14, 16, 18, 20}
)

// DefaultSettings returns Helvetica at 12pt.
func DefaultSettings() ExportSettings {
	return ExportSettings{FontFamily: "helvetica", FontSize: 12}
}

// Normalize fills defaults for zero values and rejects anything outside the
// supported families and sizes.
func (s ExportSettings) Normalize() (ExportSettings, error) {
	out := s
	out.FontFamily = strings.ToLower(strings.TrimSpace(out.FontFamily))
	if out.FontFamily == "" {
		out.FontFamily = DefaultSettings().FontFamily
	}
	if out.FontSize == 0 {
		out.FontSize = DefaultSettings().FontSize
	}
	if !containsString(FontFamilies, out.FontFamily) {
		return ExportSettings{}, fmt.Errorf("%w: font family %q", ErrInvalidSettings, s.FontFamily)
	}
	if !containsInt(FontSizes, out.FontSize) {
		return ExportSettings{}, fmt.Errorf("%w: font size %d", ErrInvalidSettings, s.FontSize)
	}
	return out, nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
