package model

import "fmt"

// MeasurementResponse is the columnar shape returned by the measurements
// endpoint. Values[i] of column z belongs to Timestamps[i].
type MeasurementResponse struct {
	Timestamps []int64         `json:"timestamps"`
	Labels     []string        `json:"labels"`
	Columns    []Column        `json:"columns"`
	Metadata   MeasurementMeta `json:"metadata"`
}

// Column holds the values of one metric.
type Column struct {
	Values []Value `json:"values"`
}

// MeasurementMeta carries per-column resource metadata.
type MeasurementMeta struct {
	Resources []Resource `json:"resources"`
}

// Resource identifies the device grouping of one column.
type Resource struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
}

// Validate checks that the timestamps and columns are present and that the
// parallel arrays line up. Empty but present arrays are a window without
// data. The error is a *MalformedResponseError naming interfaceID.
func (r *MeasurementResponse) Validate(interfaceID string) error {
	malformed := func(format string, args ...any) error {
		return &MalformedResponseError{Interface: interfaceID, Reason: fmt.Sprintf(format, args...)}
	}
	if r == nil {
		return malformed("empty response")
	}
	if r.Timestamps == nil {
		return malformed("missing timestamps")
	}
	if r.Columns == nil {
		return malformed("missing columns")
	}
	if len(r.Labels) != len(r.Columns) {
		return malformed("%d labels for %d columns", len(r.Labels), len(r.Columns))
	}
	if len(r.Metadata.Resources) < len(r.Columns) {
		return malformed("%d resources for %d columns", len(r.Metadata.Resources), len(r.Columns))
	}
	for z, col := range r.Columns {
		if len(col.Values) != len(r.Timestamps) {
			return malformed("column %d (%s) has %d values for %d timestamps", z, r.Labels[z], len(col.Values), len(r.Timestamps))
		}
		if r.Labels[z] == "" {
			return malformed("column %d has no metric label", z)
		}
	}
	return nil
}

// Samples flattens the response in (timestamp, column) order.
func (r *MeasurementResponse) Samples(interfaceID string) []Sample {
	out := make([]Sample, 0, len(r.Timestamps)*len(r.Columns))
	for i, ts := range r.Timestamps {
		for z, col := range r.Columns {
			out = append(out, Sample{
				Interface: interfaceID,
				Metric:    r.Labels[z],
				Timestamp: ts,
				Value:     col.Values[i],
			})
		}
	}
	return out
}
