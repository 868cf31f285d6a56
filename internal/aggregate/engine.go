// Package aggregate folds fetched measurement batches into per-interface,
// per-device and global calendar views.
//
// An Engine serves exactly one run. It moves from Empty to Ingesting on the
// first Ingest and to Finalized on Finalize, after which it is read-only.
// Engines are not safe for concurrent use; callers serialize Ingest.
package aggregate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/stats"
)

// State is the lifecycle stage of an Engine.
type State int

const (
	StateEmpty State = iota
	StateIngesting
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateIngesting:
		return "ingesting"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds per-run engine parameters.
type Config struct {
	// Location interprets timestamps as wall-clock time for hour and weekday
	// bucketing. Defaults to time.Local.
	Location *time.Location
	// Range is the requested report range recorded in the run metadata.
	Range model.TimeRange
	// RunID defaults to a random UUID.
	RunID string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine is the metric aggregation engine of one run.
type Engine struct {
	loc     *time.Location
	now     func() time.Time
	started time.Time
	meta    model.RunMetadata
	state   State

	groups []*group
	index  map[model.GroupKey]int

	devices    map[string]string
	interfaces []string
	metrics    []string
	metricSeen map[string]struct{}
}

// NewEngine creates an empty engine.
func NewEngine(conf ...Config) *Engine {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	started := cfg.Now()
	e := &Engine{
		loc:     cfg.Location,
		now:     cfg.Now,
		started: started,
		meta: model.RunMetadata{
			ID:        cfg.RunID,
			Generated: started,
			Range:     cfg.Range,
		},
		index:      make(map[model.GroupKey]int),
		devices:    make(map[string]string),
		metricSeen: make(map[string]struct{}),
	}
	e.group(model.GlobalKey())
	return e
}

// State returns the current lifecycle stage.
func (e *Engine) State() State { return e.state }

// RunID returns the id recorded in the run metadata.
func (e *Engine) RunID() string { return e.meta.ID }

// DeviceOf returns the device label discovered for an interface.
func (e *Engine) DeviceOf(interfaceID string) (string, bool) {
	label, ok := e.devices[interfaceID]
	return label, ok
}

// RecordGap notes an interface that was left out of the run.
func (e *Engine) RecordGap(gap model.Gap) error {
	if e.state == StateFinalized {
		return &model.DoubleFinalizeError{Op: "RecordGap"}
	}
	e.meta.Gaps = append(e.meta.Gaps, gap)
	return nil
}

// Ingest folds one batch response of one interface into every view of the
// interface, its device label and the global rollup. The response is
// validated before any state changes, so a rejected batch leaves the engine
// untouched.
func (e *Engine) Ingest(interfaceID string, resp *model.MeasurementResponse) error {
	if e.state == StateFinalized {
		return &model.DoubleFinalizeError{Op: "Ingest"}
	}
	if interfaceID == "" {
		return &model.MalformedResponseError{Reason: "empty interface id"}
	}
	if err := resp.Validate(interfaceID); err != nil {
		return err
	}
	label, err := e.resolveDevice(interfaceID, resp)
	if err != nil {
		return err
	}

	e.state = StateIngesting
	if _, ok := e.index[model.InterfaceKey(interfaceID)]; !ok {
		e.interfaces = append(e.interfaces, interfaceID)
	}
	iface := e.group(model.InterfaceKey(interfaceID))
	global := e.group(model.GlobalKey())
	global.addMember(interfaceID)

	var device *group
	if label != "" {
		if _, seen := e.devices[interfaceID]; !seen {
			e.devices[interfaceID] = label
			iface.device = label
		}
		device = e.group(model.DeviceKey(label))
		device.addMember(interfaceID)
	}

	for _, metric := range resp.Labels {
		e.noteMetric(metric)
	}

	for i, ts := range resp.Timestamps {
		wall := time.UnixMilli(ts).In(e.loc)
		hour := wall.Hour()
		day := Weekday(wall)

		for z, col := range resp.Columns {
			metric := resp.Labels[z]
			v := col.Values[i]

			iface.set(ts, metric, v)
			if device != nil {
				device.collect(ts, metric, v)
				device.bucket(hour, day, metric, v)
			}
			global.collect(ts, metric, v)
			global.bucket(hour, day, metric, v)
		}
	}
	return nil
}

// resolveDevice returns the device label carried by resp, checking it
// against the label already known for the interface. An empty label falls
// back to the interface id. It returns "" when resp has no columns and the
// label is not known yet.
func (e *Engine) resolveDevice(interfaceID string, resp *model.MeasurementResponse) (string, error) {
	known, seen := e.devices[interfaceID]
	label := known
	for z := range resp.Columns {
		l := resp.Metadata.Resources[z].Label
		if l == "" {
			l = interfaceID
		}
		if label == "" {
			label = l
			continue
		}
		if l != label {
			return "", &model.MalformedResponseError{
				Interface: interfaceID,
				Reason:    fmt.Sprintf("column %d has device label %q, expected %q", z, l, label),
			}
		}
	}
	if seen {
		return known, nil
	}
	return label, nil
}

// Finalize averages every collected bucket, computes summaries and the
// Top-N ranking and returns the read-only result. It may be called once.
func (e *Engine) Finalize() (*Result, error) {
	if e.state == StateFinalized {
		return nil, &model.DoubleFinalizeError{Op: "Finalize"}
	}
	e.state = StateFinalized

	res := &Result{
		Metrics: append([]string(nil), e.metrics...),
		index:   make(map[model.GroupKey]int, len(e.groups)),
	}

	var interfaces, devices []*Snapshot
	var global *Snapshot
	for _, g := range e.groups {
		if g.key.Kind == model.KindInterface {
			e.bucketSeries(g)
		}
		snap := g.finalize()
		switch g.key.Kind {
		case model.KindInterface:
			summarizeSeries(snap, e.metrics)
			interfaces = append(interfaces, snap)
		case model.KindDevice:
			summarizeSeries(snap, e.metrics)
			devices = append(devices, snap)
		case model.KindGlobal:
			global = snap
		}
	}
	summarizeRollup(global, interfaces, e.metrics)

	res.Groups = make([]*Snapshot, 0, len(e.groups))
	res.Groups = append(res.Groups, interfaces...)
	res.Groups = append(res.Groups, devices...)
	res.Groups = append(res.Groups, global)
	for i, snap := range res.Groups {
		res.index[snap.Key] = i
	}

	res.TopN = rankInterfaces(interfaces, e.metrics)

	e.meta.Elapsed = e.now().Sub(e.started)
	e.meta.Count = len(e.interfaces)
	res.Meta = e.meta
	res.Meta.Gaps = append([]model.Gap(nil), e.meta.Gaps...)
	return res, nil
}

func (e *Engine) group(key model.GroupKey) *group {
	if i, ok := e.index[key]; ok {
		return e.groups[i]
	}
	g := newGroup(key)
	e.index[key] = len(e.groups)
	e.groups = append(e.groups, g)
	return g
}

func (e *Engine) noteMetric(metric string) {
	if _, ok := e.metricSeen[metric]; ok {
		return
	}
	e.metricSeen[metric] = struct{}{}
	e.metrics = append(e.metrics, metric)
}

// summarizeSeries computes the per-metric summary of a finalized series.
func summarizeSeries(snap *Snapshot, metrics []string) {
	for _, metric := range metrics {
		snap.Summary[metric] = stats.Compute(snap.Column(metric))
	}
}

// summarizeRollup sets the global summary from the interface summaries:
// for each metric, the reduction of every interface Average. Interfaces
// without samples for the metric do not contribute.
func summarizeRollup(global *Snapshot, interfaces []*Snapshot, metrics []string) {
	for _, metric := range metrics {
		averages := make([]float64, 0, len(interfaces))
		for _, snap := range interfaces {
			s := snap.Summary[metric]
			if s.Empty() {
				continue
			}
			averages = append(averages, s.Average)
		}
		global.Summary[metric] = stats.ComputeFloats(averages)
	}
}

func rankInterfaces(interfaces []*Snapshot, metrics []string) map[string][]stats.Ranked {
	candidates := make(map[string][]stats.Candidate, len(metrics))
	for _, metric := range metrics {
		list := make([]stats.Candidate, 0, len(interfaces))
		for _, snap := range interfaces {
			v := model.Missing()
			if s := snap.Summary[metric]; !s.Empty() {
				v = model.Some(s.Average)
			}
			list = append(list, stats.Candidate{ID: snap.Key.ID, Value: v})
		}
		candidates[metric] = list
	}
	return stats.Rank(candidates)
}

// Weekday returns the day of week with Monday=0 through Sunday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// bucketSeries fills the histograms of an interface group from its settled
// series, so a slot written twice counts once with its last value.
func (e *Engine) bucketSeries(g *group) {
	for ts, row := range g.series {
		wall := time.UnixMilli(ts).In(e.loc)
		hour, day := wall.Hour(), Weekday(wall)
		for metric, values := range row {
			for _, v := range values {
				g.bucket(hour, day, metric, v)
			}
		}
	}
}
