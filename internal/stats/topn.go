package stats

import (
	"math"
	"sort"

	"github.com/tinytelemetry/auxreport/internal/model"
)

// Ranked is one entry of a Top-N list.
type Ranked struct {
	ID    string  `json:"id" yaml:"id"`
	Value float64 `json:"value" yaml:"value"`
}

// Candidate is one group's value for one metric, in first-seen order.
type Candidate struct {
	ID    string
	Value model.Value
}

// Rank orders candidates per metric by value descending. Ties keep input
// order. Missing values and values that round to 0.00 are left out.
func Rank(candidates map[string][]Candidate) map[string][]Ranked {
	out := make(map[string][]Ranked, len(candidates))
	for metric, list := range candidates {
		ranked := make([]Ranked, 0, len(list))
		for _, c := range list {
			v, ok := c.Value.Get()
			if !ok || RoundTo(v, 2) == 0 {
				continue
			}
			ranked = append(ranked, Ranked{ID: c.ID, Value: v})
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Value > ranked[j].Value
		})
		out[metric] = ranked
	}
	return out
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
