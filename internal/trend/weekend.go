// Package trend derives calendar views for charting from finalized
// aggregation snapshots: weekend spans for shading, a day×hour heat scatter
// and the in/out traffic lines.
package trend

import "time"

// Span is a half-open [Start, End) weekend interval.
type Span struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// IsWeekend reports whether t falls on a Saturday or Sunday in its own
// location.
func IsWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// FindWeekendSpans scans ordered timestamps once. A span opens at the first
// weekend instant of a run and closes at the first weekday instant after
// it. A run still open at the end closes at the last timestamp.
func FindWeekendSpans(times []time.Time) []Span {
	var spans []Span
	var open *Span
	for _, t := range times {
		if IsWeekend(t) {
			if open == nil {
				open = &Span{Start: t}
			}
			continue
		}
		if open != nil {
			open.End = t
			spans = append(spans, *open)
			open = nil
		}
	}
	if open != nil {
		open.End = times[len(times)-1]
		spans = append(spans, *open)
	}
	return spans
}
