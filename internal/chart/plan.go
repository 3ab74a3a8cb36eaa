package chart

import (
	"finreport-backend/internal/report"
)

// Kind is the chart form.
type Kind string

const (
	KindBar  Kind = "bar"
	KindLine Kind = "line"
)

// Palette colors series by position, cycling after four.
var Palette = []string{"#0284c7", "#10b981", "#8b5cf6", "#ef4444"}

// Series is one declared series with a value slot per category.
// A nil slot is a missing point.
type Series struct {
	Name   string
	Color  string
	Values []*float64
}

// Plan is the renderable form of a chart spec.
type Plan struct {
	Kind       Kind
	Categories []string
	Series     []Series
}

// Empty reports whether the plan would draw nothing.
func (p Plan) Empty() bool {
	return len(p.Categories) == 0 || len(p.Series) == 0
}

// BuildPlan maps a chart spec to a plan. It returns false when there is no
// spec or no data at all; non-list data yields an empty plan.
func BuildPlan(spec *report.ChartSpec) (Plan, bool) {
	if spec == nil || !spec.HasData() {
		return Plan{}, false
	}
	kind := KindLine
	if spec.Type == string(KindBar) {
		kind = KindBar
	}
	records := spec.Records()
	plan := Plan{Kind: kind, Categories: make([]string, len(records))}
	for i, rec := range records {
		plan.Categories[i] = rec.Period()
	}
	for i, name := range spec.Series {
		s := Series{
			Name:   name,
			Color:  Palette[i%len(Palette)],
			Values: make([]*float64, len(records)),
		}
		for j, rec := range records {
			if v, ok := rec.Value(name); ok {
				v := v
				s.Values[j] = &v
			}
		}
		plan.Series = append(plan.Series, s)
	}
	return plan, true
}
