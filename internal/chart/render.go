package chart

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"finreport-backend/internal/report"
)

// Renderer rasterizes chart specs to PNG.
type Renderer struct {
	Width  int
	Height int
}

func NewRenderer() *Renderer {
	return &Renderer{Width: 800, Height: 400}
}

// Render returns PNG bytes, or nil with no error when there is nothing to draw.
func (r *Renderer) Render(spec *report.ChartSpec) ([]byte, error) {
	plan, ok := BuildPlan(spec)
	if !ok || plan.Empty() {
		return nil, nil
	}
	yMin, yMax, ok := valueRange(plan)
	if !ok {
		return nil, nil
	}

	ticks := make([]gochart.Tick, len(plan.Categories))
	for i, c := range plan.Categories {
		ticks[i] = gochart.Tick{Value: float64(i), Label: c}
	}

	graph := gochart.Chart{
		Width:  r.Width,
		Height: r.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: gochart.XAxis{
			Ticks: ticks,
			Range: &gochart.ContinuousRange{Min: -0.5, Max: float64(len(plan.Categories)) - 0.5},
		},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: yMin, Max: yMax},
			GridMajorStyle: gochart.Style{
				StrokeColor:     drawing.ColorFromHex("e5e7eb"),
				StrokeWidth:     1,
				StrokeDashArray: []float64{3, 3},
			},
		},
	}

	switch plan.Kind {
	case KindBar:
		for i := range plan.Series {
			graph.Series = append(graph.Series, barSeries{plan: &plan, index: i})
		}
	default:
		for _, s := range plan.Series {
			xs, ys := points(s)
			if len(xs) == 0 {
				continue
			}
			graph.Series = append(graph.Series, gochart.ContinuousSeries{
				Name:    s.Name,
				Style:   gochart.Style{StrokeColor: hexColor(s.Color), StrokeWidth: 2},
				XValues: xs,
				YValues: ys,
			})
		}
	}
	if len(graph.Series) == 0 {
		return nil, nil
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

func points(s Series) ([]float64, []float64) {
	var xs, ys []float64
	for i, v := range s.Values {
		if v == nil {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, *v)
	}
	return xs, ys
}

// valueRange spans every present value and zero, with headroom.
func valueRange(plan Plan) (float64, float64, bool) {
	lo, hi := 0.0, 0.0
	found := false
	for _, s := range plan.Series {
		for _, v := range s.Values {
			if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
				continue
			}
			found = true
			lo = math.Min(lo, *v)
			hi = math.Max(hi, *v)
		}
	}
	if !found {
		return 0, 0, false
	}
	if hi == lo {
		hi = lo + 1
	}
	pad := (hi - lo) * 0.1
	if lo < 0 {
		lo -= pad
	}
	return lo, hi + pad, true
}

func hexColor(hex string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

// barSeries draws one declared series as bars. Bars of all series share each
// category slot, side by side in declared order.
type barSeries struct {
	plan  *Plan
	index int
}

func (b barSeries) series() Series { return b.plan.Series[b.index] }

func (b barSeries) GetName() string             { return b.series().Name }
func (b barSeries) GetYAxis() gochart.YAxisType { return gochart.YAxisPrimary }

func (b barSeries) GetStyle() gochart.Style {
	c := hexColor(b.series().Color)
	return gochart.Style{FillColor: c, StrokeColor: c, StrokeWidth: 1}
}

func (b barSeries) Validate() error {
	if len(b.series().Values) != len(b.plan.Categories) {
		return fmt.Errorf("bar series %q: %d values for %d categories",
			b.series().Name, len(b.series().Values), len(b.plan.Categories))
	}
	return nil
}

func (b barSeries) Render(r gochart.Renderer, canvas gochart.Box, xrange, yrange gochart.Range, _ gochart.Style) {
	slot := float64(xrange.Translate(1) - xrange.Translate(0))
	group := slot * 0.8
	width := group / float64(len(b.plan.Series))
	zero := canvas.Bottom - yrange.Translate(0)
	style := b.GetStyle()

	for i, v := range b.series().Values {
		if v == nil {
			continue
		}
		left := float64(canvas.Left+xrange.Translate(float64(i))) - group/2
		x0 := int(math.Round(left + float64(b.index)*width))
		x1 := int(math.Round(left + float64(b.index+1)*width))
		y := canvas.Bottom - yrange.Translate(*v)

		r.SetFillColor(style.FillColor)
		r.SetStrokeColor(style.StrokeColor)
		r.SetStrokeWidth(style.StrokeWidth)
		r.MoveTo(x0, zero)
		r.LineTo(x1, zero)
		r.LineTo(x1, y)
		r.LineTo(x0, y)
		r.Close()
		r.FillStroke()
	}
}
