// Package stats reduces finalized series into per-metric summaries and
// ranks groups by them.
package stats

import (
	"math"

	"github.com/tinytelemetry/auxreport/internal/model"
)

// Summary is the reduction of one metric in one group.
type Summary struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Average float64 `json:"average" yaml:"average"`
	Total   float64 `json:"total" yaml:"total"`
	// Count is the number of present values the summary was computed from.
	Count int `json:"count" yaml:"count"`
}

// Empty reports whether the summary was computed from no values.
func (s Summary) Empty() bool { return s.Count == 0 }

// Compute drops missing values and reduces the rest. An empty input yields
// an all-zero summary.
func Compute(values []model.Value) Summary {
	return ComputeFloats(model.Present(values))
}

// ComputeFloats reduces plain values.
func ComputeFloats(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
		Count: len(values),
	}
	for _, v := range values {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		s.Total += v
	}
	s.Average = s.Total / float64(len(values))
	return s
}
