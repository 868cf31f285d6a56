package model

import "time"

// Sample is one metric datapoint of one interface.
type Sample struct {
	Interface string
	Metric    string
	Timestamp int64 // epoch milliseconds
	Value     Value
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Gap records an interface dropped from a best-effort run.
type Gap struct {
	Interface string `json:"interface" yaml:"interface"`
	Error     string `json:"error" yaml:"error"`
}

// RunMetadata describes one finalized run. It is immutable once the run is
// finalized.
type RunMetadata struct {
	ID        string        `json:"id" yaml:"id"`
	Generated time.Time     `json:"generated" yaml:"generated"`
	Range     TimeRange     `json:"range" yaml:"range"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	Count     int           `json:"count" yaml:"count"`
	Gaps      []Gap         `json:"gaps,omitempty" yaml:"gaps,omitempty"`
}
