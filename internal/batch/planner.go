package batch

import (
	"time"

	"github.com/tinytelemetry/auxreport/internal/model"
)

// Config holds tunable parameters for the planner.
type Config struct {
	// Width is the maximum End-Start of one window.
	Width time.Duration
	// Lookback is the trailing window used when the range is absent or
	// inverted.
	Lookback time.Duration
	// StrictRange turns inverted ranges into *model.InvalidRangeError
	// instead of repairing them.
	StrictRange bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Planner splits a requested range into bounded, contiguous windows.
type Planner struct {
	width    int64
	lookback int64
	strict   bool
	now      func() time.Time
}

// NewPlanner creates a planner. Zero config fields take the package defaults.
func NewPlanner(conf ...Config) *Planner {
	p := &Planner{
		width:    model.DefaultBatchWidth.Milliseconds(),
		lookback: model.DefaultLookback.Milliseconds(),
		now:      time.Now,
	}
	if len(conf) > 0 {
		if conf[0].Width > 0 {
			p.width = conf[0].Width.Milliseconds()
		}
		if conf[0].Lookback > 0 {
			p.lookback = conf[0].Lookback.Milliseconds()
		}
		if conf[0].Now != nil {
			p.now = conf[0].Now
		}
		p.strict = conf[0].StrictRange
	}
	if p.width <= 0 {
		p.width = 1
	}
	return p
}

// Resolve applies the range policy: an absent end (0) is now, an absent
// start (0) is one lookback before the end, and an inverted range becomes
// the trailing lookback window ending now.
func (p *Planner) Resolve(startMs, endMs int64) (model.Window, error) {
	if startMs < 0 || endMs < 0 {
		return model.Window{}, &model.InvalidRangeError{Start: startMs, End: endMs, Reason: "negative timestamp"}
	}
	if startMs == 0 && endMs == 0 {
		return p.trailing(), nil
	}
	if endMs == 0 {
		endMs = p.now().UnixMilli()
	}
	if startMs == 0 {
		startMs = max(endMs-p.lookback, 0)
	}
	if startMs >= endMs {
		if p.strict {
			return model.Window{}, &model.InvalidRangeError{Start: startMs, End: endMs, Reason: "start is not before end"}
		}
		return p.trailing(), nil
	}
	return model.Window{Start: startMs, End: endMs}, nil
}

// Plan resolves the range and splits it into ordered windows. Windows never
// overlap, each next window starts 1ms after the previous one ends and the
// last one ends exactly at the resolved end.
func (p *Planner) Plan(startMs, endMs int64) ([]model.Window, error) {
	r, err := p.Resolve(startMs, endMs)
	if err != nil {
		return nil, err
	}
	return p.split(r), nil
}

func (p *Planner) split(r model.Window) []model.Window {
	windows := make([]model.Window, 0, (r.End-r.Start)/p.width+1)
	for start := r.Start; start <= r.End; {
		end := start + p.width
		if end > r.End {
			end = r.End
		}
		windows = append(windows, model.Window{Start: start, End: end})
		if end == r.End {
			break
		}
		start = end + 1
	}
	return windows
}

func (p *Planner) trailing() model.Window {
	end := p.now().UnixMilli()
	return model.Window{Start: end - p.lookback, End: end}
}
