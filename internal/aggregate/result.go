package aggregate

import (
	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/stats"
)

// Result is the read-only output of a finalized engine. Groups lists the
// interface groups in first-seen order, then device groups, then the global
// rollup last.
type Result struct {
	Meta    model.RunMetadata         `json:"meta" yaml:"meta"`
	Metrics []string                  `json:"metrics" yaml:"metrics"`
	Groups  []*Snapshot               `json:"groups" yaml:"groups"`
	TopN    map[string][]stats.Ranked `json:"topN" yaml:"topN"`

	index map[model.GroupKey]int
}

// Group returns the snapshot of key.
func (r *Result) Group(key model.GroupKey) (*Snapshot, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.Groups[i], true
}

// Global returns the global rollup snapshot.
func (r *Result) Global() *Snapshot {
	snap, _ := r.Group(model.GlobalKey())
	return snap
}

// Interfaces returns the interface snapshots in first-seen order.
func (r *Result) Interfaces() []*Snapshot { return r.ofKind(model.KindInterface) }

// Devices returns the device-label snapshots in first-seen order.
func (r *Result) Devices() []*Snapshot { return r.ofKind(model.KindDevice) }

func (r *Result) ofKind(kind model.GroupKind) []*Snapshot {
	var out []*Snapshot
	for _, snap := range r.Groups {
		if snap.Key.Kind == kind {
			out = append(out, snap)
		}
	}
	return out
}

// Top returns the ranking of metric truncated to n entries. n <= 0 returns
// the full ranking.
func (r *Result) Top(metric string, n int) []stats.Ranked {
	list := r.TopN[metric]
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}
