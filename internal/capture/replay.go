package capture

import (
	"context"
	"errors"
	"time"

	"github.com/tinytelemetry/auxreport/internal/model"
)

// ErrNotCaptured is wrapped in the FetchError returned by a Replayer for an
// interface and window the journal does not hold.
var ErrNotCaptured = errors.New("capture: response not captured")

// Recorder wraps a fetcher and appends every successful response to a
// journal. A journal write failure fails the fetch.
type Recorder struct {
	next    model.MeasurementFetcher
	journal *Journal
	now     func() time.Time
}

// NewRecorder creates a recording fetcher.
func NewRecorder(next model.MeasurementFetcher, j *Journal) *Recorder {
	return &Recorder{next: next, journal: j, now: time.Now}
}

// Fetch implements model.MeasurementFetcher.
func (r *Recorder) Fetch(ctx context.Context, interfaceID string, metrics []string, w model.Window) (*model.MeasurementResponse, error) {
	resp, err := r.next.Fetch(ctx, interfaceID, metrics, w)
	if err != nil {
		return nil, err
	}
	if _, err := r.journal.Append(Entry{
		Captured:  r.now().UTC(),
		Interface: interfaceID,
		Metrics:   append([]string(nil), metrics...),
		Window:    w,
		Response:  resp,
	}); err != nil {
		return nil, &model.FetchError{Interface: interfaceID, Window: w, Err: err}
	}
	return resp, nil
}

type replayKey struct {
	iface string
	start int64
	end   int64
}

// Replayer serves captured responses. The latest entry for an interface
// and window wins.
type Replayer struct {
	responses  map[replayKey]*model.MeasurementResponse
	interfaces []string
	metrics    []string
	window     model.Window
}

// Load reads a journal into a Replayer.
func Load(path string) (*Replayer, error) {
	r := &Replayer{responses: make(map[replayKey]*model.MeasurementResponse)}
	seenIface := make(map[string]struct{})
	seenMetric := make(map[string]struct{})
	err := ReadFile(path, func(e *Entry) error {
		if e.Response == nil {
			return nil
		}
		r.responses[replayKey{iface: e.Interface, start: e.Window.Start, end: e.Window.End}] = e.Response
		if _, ok := seenIface[e.Interface]; !ok {
			seenIface[e.Interface] = struct{}{}
			r.interfaces = append(r.interfaces, e.Interface)
		}
		for _, m := range e.Metrics {
			if _, ok := seenMetric[m]; !ok {
				seenMetric[m] = struct{}{}
				r.metrics = append(r.metrics, m)
			}
		}
		if r.window.Start == 0 || e.Window.Start < r.window.Start {
			r.window.Start = e.Window.Start
		}
		if e.Window.End > r.window.End {
			r.window.End = e.Window.End
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Interfaces returns the captured interfaces in first-seen order.
func (r *Replayer) Interfaces() []string { return append([]string(nil), r.interfaces...) }

// Metrics returns the captured metric names in first-seen order.
func (r *Replayer) Metrics() []string { return append([]string(nil), r.metrics...) }

// Window returns the span covered by all captured windows.
func (r *Replayer) Window() model.Window { return r.window }

// Len returns the number of distinct captured exchanges.
func (r *Replayer) Len() int { return len(r.responses) }

// Fetch implements model.MeasurementFetcher.
func (r *Replayer) Fetch(ctx context.Context, interfaceID string, _ []string, w model.Window) (*model.MeasurementResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.FetchError{Interface: interfaceID, Window: w, Err: err}
	}
	resp, ok := r.responses[replayKey{iface: interfaceID, start: w.Start, end: w.End}]
	if !ok {
		return nil, &model.FetchError{Interface: interfaceID, Window: w, Err: ErrNotCaptured}
	}
	return resp, nil
}
