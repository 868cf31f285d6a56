package trend

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/auxreport/internal/aggregate"
)

const (
	DefaultOutMetric = "ifHCOutOctets"
	DefaultInMetric  = "ifHCInOctets"

	averageRow = "average"
	averageCol = "Average"
)

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayName returns the name of a Monday=0 weekday index.
func DayName(day int) string {
	if day < 0 || day >= len(dayNames) {
		return fmt.Sprintf("Day(%d)", day)
	}
	return dayNames[day]
}

// Pair names the outbound and inbound metric of one chart.
type Pair struct {
	Out      string
	In       string
	OutLabel string
	InLabel  string
}

// ByteMetrics picks the octet pair among the discovered metric names. It
// prefers the 64-bit counters, then the 32-bit ones, then the defaults.
func ByteMetrics(metrics []string) Pair {
	p := Pair{Out: DefaultOutMetric, In: DefaultInMetric, OutLabel: "Bytes Out", InLabel: "Bytes In"}
	has := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		has[m] = true
	}
	switch {
	case has["ifHCOutOctets"] && has["ifHCInOctets"]:
	case has["ifOutOctets"] && has["ifInOctets"]:
		p.Out, p.In = "ifOutOctets", "ifInOctets"
	default:
		for _, m := range metrics {
			lower := strings.ToLower(m)
			switch {
			case strings.Contains(lower, "out") && strings.Contains(lower, "octets"):
				p.Out = m
			case strings.Contains(lower, "in") && strings.Contains(lower, "octets"):
				p.In = m
			}
		}
	}
	return p
}

// Options tune projections.
type Options struct {
	// Bits scales octet values by 8.
	Bits bool
	// Location converts timestamps for display. Defaults to time.Local.
	Location *time.Location
}

func (o Options) scale(v float64) float64 {
	if o.Bits {
		return v * 8
	}
	return v
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// Scatter is a categorical heat scatter: one entry per (X, Y, C) triple
// with magnitude Z.
type Scatter struct {
	X []string  `json:"x" yaml:"x"`
	Y []string  `json:"y" yaml:"y"`
	Z []float64 `json:"z" yaml:"z"`
	C []string  `json:"c" yaml:"c"`
}

// Len returns the number of points.
func (s *Scatter) Len() int { return len(s.X) }

func (s *Scatter) add(x, y string, z float64, c string) {
	s.X = append(s.X, x)
	s.Y = append(s.Y, y)
	s.Z = append(s.Z, z)
	s.C = append(s.C, c)
}

// addBucket appends b[metric] unless it is missing or zero.
func (s *Scatter) addBucket(x, y string, b aggregate.Buckets, metric, category string, opts Options) {
	v, ok := b[metric].Get()
	if !ok || v == 0 {
		return
	}
	s.add(x, y, opts.scale(v), category)
}

// HourLabel formats an hour-of-day row label.
func HourLabel(hour int) string { return fmt.Sprintf("%02d:00", hour) }

// ScatterTrend projects the day×hour histogram of a snapshot into a heat
// scatter. Each weekday contributes its total bucket as the "average" row
// followed by its hour rows. The hour-of-day histogram follows in the
// "Average" column.
func ScatterTrend(snap *aggregate.Snapshot, pair Pair, opts Options) Scatter {
	var s Scatter
	if snap == nil {
		return s
	}
	for d, day := range snap.Days {
		name := DayName(d)
		s.addBucket(name, averageRow, day.Total, pair.Out, pair.OutLabel, opts)
		s.addBucket(name, averageRow, day.Total, pair.In, pair.InLabel, opts)
		for h, b := range day.Hours {
			s.addBucket(name, HourLabel(h), b, pair.Out, pair.OutLabel, opts)
			s.addBucket(name, HourLabel(h), b, pair.In, pair.InLabel, opts)
		}
	}
	for h, b := range snap.Hours {
		s.addBucket(averageCol, HourLabel(h), b, pair.Out, pair.OutLabel, opts)
		s.addBucket(averageCol, HourLabel(h), b, pair.In, pair.InLabel, opts)
	}
	return s
}

// LineSeries is one plotted line.
type LineSeries struct {
	Label string      `json:"label" yaml:"label"`
	X     []time.Time `json:"x" yaml:"x"`
	Y     []float64   `json:"y" yaml:"y"`
}

// TimeLines projects the finalized series into an outbound line drawn below
// the axis and an inbound line above it. Missing slots plot as 0.
func TimeLines(snap *aggregate.Snapshot, pair Pair, opts Options) (out, in LineSeries) {
	out.Label, in.Label = pair.OutLabel, pair.InLabel
	if snap == nil {
		return out, in
	}
	loc := opts.location()
	out.X = make([]time.Time, 0, len(snap.Series))
	out.Y = make([]float64, 0, len(snap.Series))
	in.X = make([]time.Time, 0, len(snap.Series))
	in.Y = make([]float64, 0, len(snap.Series))
	for _, p := range snap.Series {
		t := p.Time().In(loc)
		out.X = append(out.X, t)
		in.X = append(in.X, t)
		out.Y = append(out.Y, -opts.scale(p.Values[pair.Out].Or(0)))
		in.Y = append(in.Y, opts.scale(p.Values[pair.In].Or(0)))
	}
	return out, in
}

// Weekends returns the weekend spans of a snapshot's series.
func Weekends(snap *aggregate.Snapshot, opts Options) []Span {
	if snap == nil {
		return nil
	}
	loc := opts.location()
	times := snap.Times()
	for i := range times {
		times[i] = times[i].In(loc)
	}
	return FindWeekendSpans(times)
}
