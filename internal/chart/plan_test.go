package chart

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finreport-backend/internal/report"
)

func spec(kind string, series []string, data string) *report.ChartSpec {
	s := &report.ChartSpec{Type: kind, Series: series}
	if data != "" {
		s.Data = json.RawMessage(data)
	}
	return s
}

func TestBuildPlanBarKeepsSeriesOrderAndPalette(t *testing.T) {
	plan, ok := BuildPlan(spec("bar", []string{"revenue", "cost"},
		`[{"period":"Q1","revenue":100,"cost":60},{"period":"Q2","revenue":120}]`))
	require.True(t, ok)

	assert.Equal(t, KindBar, plan.Kind)
	assert.Equal(t, []string{"Q1", "Q2"}, plan.Categories)
	require.Len(t, plan.Series, 2)
	assert.Equal(t, "revenue", plan.Series[0].Name)
	assert.Equal(t, "#0284c7", plan.Series[0].Color)
	assert.Equal(t, "cost", plan.Series[1].Name)
	assert.Equal(t, "#10b981", plan.Series[1].Color)

	require.NotNil(t, plan.Series[1].Values[0])
	assert.Equal(t, 60.0, *plan.Series[1].Values[0])
	assert.Nil(t, plan.Series[1].Values[1])
}

func TestBuildPlanPaletteCycles(t *testing.T) {
	plan, ok := BuildPlan(spec("line", []string{"a", "b", "c", "d", "e"}, `[{"period":"Q1"}]`))
	require.True(t, ok)
	assert.Equal(t, KindLine, plan.Kind)
	assert.Equal(t, "#ef4444", plan.Series[3].Color)
	assert.Equal(t, "#0284c7", plan.Series[4].Color)
}

func TestBuildPlanUnknownTypeIsLine(t *testing.T) {
	plan, ok := BuildPlan(spec("pie", []string{"a"}, `[]`))
	require.True(t, ok)
	assert.Equal(t, KindLine, plan.Kind)
	assert.True(t, plan.Empty())
}

func TestBuildPlanAbsentData(t *testing.T) {
	_, ok := BuildPlan(nil)
	assert.False(t, ok)
	_, ok = BuildPlan(spec("bar", []string{"a"}, ""))
	assert.False(t, ok)
	_, ok = BuildPlan(spec("bar", []string{"a"}, "null"))
	assert.False(t, ok)
}

func TestBuildPlanNonListDataIsEmpty(t *testing.T) {
	plan, ok := BuildPlan(spec("bar", []string{"revenue"}, `{"period":"Q1","revenue":1}`))
	require.True(t, ok)
	assert.True(t, plan.Empty())
}

func TestRenderNothing(t *testing.T) {
	r := NewRenderer()
	for _, s := range []*report.ChartSpec{
		nil,
		spec("bar", []string{"a"}, ""),
		spec("bar", []string{"a"}, `"oops"`),
		spec("line", nil, `[{"period":"Q1","a":1}]`),
		spec("line", []string{"a"}, `[{"period":"Q1"}]`),
	} {
		out, err := r.Render(s)
		assert.NoError(t, err)
		assert.Nil(t, out)
	}
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderBarPNG(t *testing.T) {
	out, err := NewRenderer().Render(spec("bar", []string{"revenue", "cost"},
		`[{"period":"Q1","revenue":100,"cost":60},{"period":"Q2","revenue":120,"cost":-10}]`))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, pngMagic))
}

func TestRenderLinePNGSkipsMissingPoints(t *testing.T) {
	out, err := NewRenderer().Render(spec("line", []string{"revenue", "margin"},
		`[{"period":"2023","revenue":5},{"period":"2024","revenue":7,"margin":0.2}]`))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, pngMagic))
}

func TestValueRangeFlatSeries(t *testing.T) {
	v := 5.0
	lo, hi, ok := valueRange(Plan{Series: []Series{{Values: []*float64{&v, &v}}}})
	require.True(t, ok)
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 5.5, hi, 1e-9)
}
