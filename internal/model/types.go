package model

import (
	"fmt"
	"time"
)

// GroupKind discriminates the three kinds of aggregation groups.
type GroupKind int

const (
	// KindInterface is a single monitored interface (one VIP).
	KindInterface GroupKind = iota
	// KindDevice groups every interface sharing a device label.
	KindDevice
	// KindGlobal is the singleton rollup over every interface in the run.
	KindGlobal
)

func (k GroupKind) String() string {
	switch k {
	case KindInterface:
		return "interface"
	case KindDevice:
		return "device"
	case KindGlobal:
		return "global"
	default:
		return fmt.Sprintf("GroupKind(%d)", int(k))
	}
}

// ParseGroupKind is the inverse of GroupKind.String.
func ParseGroupKind(s string) (GroupKind, error) {
	switch s {
	case "interface":
		return KindInterface, nil
	case "device":
		return KindDevice, nil
	case "global":
		return KindGlobal, nil
	}
	return 0, fmt.Errorf("unknown group kind %q", s)
}

// MarshalText encodes the kind by name.
func (k GroupKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *GroupKind) UnmarshalText(b []byte) error {
	kind, err := ParseGroupKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// GroupKey identifies one aggregation group. The global key has an empty ID.
type GroupKey struct {
	Kind GroupKind `json:"kind" yaml:"kind"`
	ID   string    `json:"id,omitempty" yaml:"id,omitempty"`
}

// InterfaceKey returns the key of a single interface.
func InterfaceKey(id string) GroupKey { return GroupKey{Kind: KindInterface, ID: id} }

// DeviceKey returns the key of a device label.
func DeviceKey(label string) GroupKey { return GroupKey{Kind: KindDevice, ID: label} }

// GlobalKey returns the singleton rollup key.
func GlobalKey() GroupKey { return GroupKey{Kind: KindGlobal} }

func (k GroupKey) String() string {
	if k.Kind == KindGlobal {
		return "global"
	}
	return k.Kind.String() + ":" + k.ID
}

// Window is one inclusive [Start, End] request range in epoch milliseconds.
type Window struct {
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end" yaml:"end"`
}

// Width returns End-Start as a duration.
func (w Window) Width() time.Duration {
	return time.Duration(w.End-w.Start) * time.Millisecond
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]",
		time.UnixMilli(w.Start).UTC().Format(time.RFC3339),
		time.UnixMilli(w.End).UTC().Format(time.RFC3339))
}

// TimeRange is the requested report range.
type TimeRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// RangeFromWindow converts a millisecond window into a TimeRange.
func RangeFromWindow(w Window) TimeRange {
	return TimeRange{Start: time.UnixMilli(w.Start), End: time.UnixMilli(w.End)}
}
