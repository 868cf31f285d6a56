package aggregate

import (
	"sort"
	"time"

	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/stats"
)

const (
	hoursPerDay = 24
	daysPerWeek = 7
)

// cell collects raw values per metric until finalize.
type cell map[string][]model.Value

func (c cell) add(metric string, v model.Value) {
	c[metric] = append(c[metric], v)
}

// collapse replaces every collection by its mean over present values.
func (c cell) collapse() Buckets {
	out := make(Buckets, len(c))
	for metric, values := range c {
		out[metric] = model.Mean(values)
	}
	return out
}

type dayCells struct {
	hours [hoursPerDay]cell
	total cell
}

// group is the mutable state of one GroupKey. The engine owns every group
// in an arena indexed by key.
type group struct {
	key     model.GroupKey
	device  string
	members []string
	member  map[string]struct{}

	series  map[int64]cell
	hours   [hoursPerDay]cell
	days    [daysPerWeek]dayCells
	running cell
}

func newGroup(key model.GroupKey) *group {
	g := &group{
		key:     key,
		member:  make(map[string]struct{}),
		series:  make(map[int64]cell),
		running: make(cell),
	}
	for h := 0; h < hoursPerDay; h++ {
		g.hours[h] = make(cell)
	}
	for d := 0; d < daysPerWeek; d++ {
		g.days[d].total = make(cell)
		for h := 0; h < hoursPerDay; h++ {
			g.days[d].hours[h] = make(cell)
		}
	}
	return g
}

func (g *group) addMember(id string) {
	if _, ok := g.member[id]; ok {
		return
	}
	g.member[id] = struct{}{}
	g.members = append(g.members, id)
}

func (g *group) row(ts int64) cell {
	row, ok := g.series[ts]
	if !ok {
		row = make(cell)
		g.series[ts] = row
	}
	return row
}

// set overwrites the scalar of an interface series slot.
func (g *group) set(ts int64, metric string, v model.Value) {
	g.row(ts)[metric] = []model.Value{v}
}

// collect appends one contribution to a rollup series slot.
func (g *group) collect(ts int64, metric string, v model.Value) {
	g.row(ts).add(metric, v)
}

func (g *group) bucket(hour, day int, metric string, v model.Value) {
	g.hours[hour].add(metric, v)
	g.days[day].hours[hour].add(metric, v)
	g.days[day].total.add(metric, v)
	g.running.add(metric, v)
}

func (g *group) finalize() *Snapshot {
	snap := &Snapshot{
		Key:     g.key,
		Device:  g.device,
		Members: append([]string(nil), g.members...),
		Running: g.running.collapse(),
		Summary: make(map[string]stats.Summary),
	}

	stamps := make([]int64, 0, len(g.series))
	for ts := range g.series {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
	snap.Series = make([]Point, 0, len(stamps))
	for _, ts := range stamps {
		snap.Series = append(snap.Series, Point{Timestamp: ts, Values: g.series[ts].collapse()})
	}

	for h := 0; h < hoursPerDay; h++ {
		snap.Hours[h] = g.hours[h].collapse()
	}
	for d := 0; d < daysPerWeek; d++ {
		snap.Days[d].Total = g.days[d].total.collapse()
		for h := 0; h < hoursPerDay; h++ {
			snap.Days[d].Hours[h] = g.days[d].hours[h].collapse()
		}
	}
	return snap
}

// Buckets maps metric name to a finalized value.
type Buckets map[string]model.Value

// DayBuckets holds the 24 hour buckets and the day total of one weekday.
type DayBuckets struct {
	Total Buckets              `json:"total" yaml:"total"`
	Hours [hoursPerDay]Buckets `json:"hours" yaml:"hours"`
}

// Point is one finalized timestamp of a series.
type Point struct {
	Timestamp int64   `json:"timestamp" yaml:"timestamp"`
	Values    Buckets `json:"values" yaml:"values"`
}

// Time returns the point timestamp as a time.Time.
func (p Point) Time() time.Time { return time.UnixMilli(p.Timestamp) }

// Snapshot is the finalized, read-only view of one group.
type Snapshot struct {
	Key model.GroupKey `json:"key" yaml:"key"`
	// Device is the discovered device label of an interface group.
	Device string `json:"device,omitempty" yaml:"device,omitempty"`
	// Members lists contributing interfaces in first-seen order.
	Members []string                 `json:"members,omitempty" yaml:"members,omitempty"`
	Series  []Point                  `json:"series" yaml:"series"`
	Hours   [hoursPerDay]Buckets     `json:"hours" yaml:"hours"`
	Days    [daysPerWeek]DayBuckets  `json:"days" yaml:"days"`
	Running Buckets                  `json:"running" yaml:"running"`
	Summary map[string]stats.Summary `json:"summary" yaml:"summary"`
}

// Column returns the values of one metric in timestamp order.
func (s *Snapshot) Column(metric string) []model.Value {
	out := make([]model.Value, 0, len(s.Series))
	for _, p := range s.Series {
		v, ok := p.Values[metric]
		if !ok {
			v = model.Missing()
		}
		out = append(out, v)
	}
	return out
}

// Times returns the series timestamps in ascending order.
func (s *Snapshot) Times() []time.Time {
	out := make([]time.Time, 0, len(s.Series))
	for _, p := range s.Series {
		out = append(out, p.Time())
	}
	return out
}
