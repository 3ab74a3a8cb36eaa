package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportDataDecodesAPIResponse(t *testing.T) {
	body := `{
		"yoy_change": 12.345,
		"qoq_change": -3.2,
		"total_revenue": 1500000,
		"chart_data": {"type": "bar", "series": ["revenue", "cost"], "data": [{"period": "Q1", "revenue": 10, "cost": 4}]},
		"markdown_report": "# MD&A",
		"citations": [{"source": "10-K"}]
	}`
	var data ReportData
	require.NoError(t, json.Unmarshal([]byte(body), &data))

	require.NotNil(t, data.YoYChange)
	assert.Equal(t, 12.345, *data.YoYChange)
	assert.Equal(t, "# MD&A", data.MarkdownReport)
	assert.JSONEq(t, `[{"source": "10-K"}]`, string(data.Citations))

	records := data.ChartData.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Q1", records[0].Period())
	v, ok := records[0].Value("cost")
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
	_, ok = records[0].Value("profit")
	assert.False(t, ok)
}

func TestChartSpecRecordsCoercesNonList(t *testing.T) {
	spec := &ChartSpec{Type: "line", Series: []string{"revenue"}, Data: json.RawMessage(`{"period": "Q1"}`)}
	assert.True(t, spec.HasData())
	assert.Empty(t, spec.Records())

	null := &ChartSpec{Data: json.RawMessage(`null`)}
	assert.False(t, null.HasData())

	var missing *ChartSpec
	assert.False(t, missing.HasData())
	assert.Nil(t, missing.Records())
}

func TestRecordPeriodNumeric(t *testing.T) {
	assert.Equal(t, "2024", Record{"period": 2024.0}.Period())
	assert.Equal(t, "", Record{}.Period())
}

func TestExportSettingsNormalize(t *testing.T) {
	got, err := ExportSettings{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)

	got, err = ExportSettings{FontFamily: " Times ", FontSize: 16}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, ExportSettings{FontFamily: "times", FontSize: 16}, got)

	_, err = ExportSettings{FontFamily: "arial"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = ExportSettings{FontSize: 11}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
