package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinytelemetry/auxreport/internal/batch"
	"github.com/tinytelemetry/auxreport/internal/model"
)

var fixedNow = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  map[string][]model.Window
	fail   map[string]error
	delay  map[string]time.Duration
	values map[string]float64
	labels map[string]string
	block  bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:  make(map[string][]model.Window),
		fail:   make(map[string]error),
		delay:  make(map[string]time.Duration),
		values: make(map[string]float64),
		labels: make(map[string]string),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, iface string, metrics []string, w model.Window) (*model.MeasurementResponse, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[iface] = append(f.calls[iface], w)
	delay := f.delay[iface]
	failErr := f.fail[iface]
	value, ok := f.values[iface]
	label := f.labels[iface]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		value = 1
	}
	if label == "" {
		label = "dev"
	}
	resp := &model.MeasurementResponse{Timestamps: []int64{w.Start}}
	for _, m := range metrics {
		resp.Labels = append(resp.Labels, m)
		resp.Columns = append(resp.Columns, model.Column{Values: []model.Value{model.Some(value)}})
		resp.Metadata.Resources = append(resp.Metadata.Resources, model.Resource{ID: iface, Label: label})
	}
	return resp, nil
}

func testRunner(f model.MeasurementFetcher, cfg Config) *Runner {
	cfg.Location = time.UTC
	cfg.Batch = batch.Config{Now: func() time.Time { return fixedNow }}
	return NewRunner(f, cfg, WithClock(func() time.Time { return fixedNow }))
}

func interfaceOrder(t *testing.T, r *Runner, req Request) []string {
	t.Helper()
	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var ids []string
	for _, snap := range res.Interfaces() {
		ids = append(ids, snap.Key.ID)
	}
	return ids
}

func TestRun_FetchesEveryWindow(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	r := testRunner(f, Config{Concurrency: 2})

	res, err := r.Run(context.Background(), Request{Interfaces: []string{"a", "b"}, Metrics: []string{"m"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// An absent range is the trailing 30 days, which needs three windows.
	for _, iface := range []string{"a", "b"} {
		calls := f.calls[iface]
		if len(calls) != 3 {
			t.Fatalf("%s fetched %d windows, want 3", iface, len(calls))
		}
		for i := 1; i < len(calls); i++ {
			if calls[i].Start != calls[i-1].End+1 {
				t.Fatalf("%s windows not contiguous: %v", iface, calls)
			}
		}
		if calls[2].End != fixedNow.UnixMilli() {
			t.Fatalf("%s last window ends at %d, want now", iface, calls[2].End)
		}
	}
	if res.Meta.Count != 2 {
		t.Fatalf("Count=%d, want 2", res.Meta.Count)
	}
	if !res.Meta.Range.End.Equal(fixedNow) {
		t.Fatalf("Range.End=%v, want %v", res.Meta.Range.End, fixedNow)
	}
}

func TestRun_DeterministicOrder(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.delay["first"] = 40 * time.Millisecond
	f.delay["second"] = 20 * time.Millisecond
	r := testRunner(f, Config{Concurrency: 3})

	got := interfaceOrder(t, r, Request{
		Interfaces: []string{"first", "second", "third", "second", " "},
		Metrics:    []string{"m"},
		Start:      fixedNow.Add(-time.Hour).UnixMilli(),
		End:        fixedNow.UnixMilli(),
	})
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("order=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order=%v, want %v", got, want)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	ifaces := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, iface := range ifaces {
		f.delay[iface] = 10 * time.Millisecond
	}
	r := testRunner(f, Config{Concurrency: 2})

	if _, err := r.Run(context.Background(), Request{Interfaces: ifaces, Metrics: []string{"m"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak := f.maxInflight.Load(); peak > 2 {
		t.Fatalf("max in-flight fetches=%d, want <= 2", peak)
	}
}

func TestRun_FailFast(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	boom := errors.New("connection refused")
	f.fail["b"] = boom
	r := testRunner(f, Config{Concurrency: 1})

	res, err := r.Run(context.Background(), Request{Interfaces: []string{"a", "b", "c"}, Metrics: []string{"m"}})
	if res != nil {
		t.Fatalf("expected no result on failure")
	}
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Interface != "b" || !errors.Is(err, boom) {
		t.Fatalf("unexpected failure %v", err)
	}
	if iface, ok := model.FailedInterface(err); !ok || iface != "b" {
		t.Fatalf("FailedInterface=%q %v", iface, ok)
	}
}

func TestRun_BestEffortRecordsGap(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.fail["b"] = errors.New("timeout")
	f.values["a"] = 10
	f.values["c"] = 30
	r := testRunner(f, Config{Concurrency: 2, Policy: BestEffort})

	res, err := r.Run(context.Background(), Request{Interfaces: []string{"a", "b", "c"}, Metrics: []string{"m"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Meta.Gaps) != 1 || res.Meta.Gaps[0].Interface != "b" {
		t.Fatalf("gaps=%v", res.Meta.Gaps)
	}
	if _, ok := res.Group(model.InterfaceKey("b")); ok {
		t.Fatal("failed interface must not be aggregated")
	}
	if res.Meta.Count != 2 {
		t.Fatalf("Count=%d, want 2", res.Meta.Count)
	}
	device, ok := res.Group(model.DeviceKey("dev"))
	if !ok {
		t.Fatal("missing device group")
	}
	if avg := device.Summary["m"].Average; avg != 20 {
		t.Fatalf("device average=%v, want 20", avg)
	}
}

func TestRun_BestEffortDropsInterfaceWithChangingLabel(t *testing.T) {
	t.Parallel()

	f := &labelFlipper{fakeFetcher: newFakeFetcher()}
	r := testRunner(f, Config{Concurrency: 1, Policy: BestEffort})

	res, err := r.Run(context.Background(), Request{Interfaces: []string{"flip"}, Metrics: []string{"m"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Meta.Gaps) != 1 {
		t.Fatalf("gaps=%v", res.Meta.Gaps)
	}
	if len(res.Interfaces()) != 0 {
		t.Fatalf("interface with changing label was partially ingested")
	}
}

// labelFlipper reports a different device label for every window.
type labelFlipper struct {
	*fakeFetcher
	n atomic.Int32
}

func (l *labelFlipper) Fetch(ctx context.Context, iface string, metrics []string, w model.Window) (*model.MeasurementResponse, error) {
	resp, err := l.fakeFetcher.Fetch(ctx, iface, metrics, w)
	if err != nil {
		return nil, err
	}
	if l.n.Add(1) > 1 {
		for i := range resp.Metadata.Resources {
			resp.Metadata.Resources[i].Label = "other"
		}
	}
	return resp, nil
}

func TestRun_Canceled(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.block = true
	r := testRunner(f, Config{Concurrency: 2, Policy: BestEffort})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res, err := r.Run(ctx, Request{Interfaces: []string{"a", "b", "c"}, Metrics: []string{"m"}})
	if res != nil {
		t.Fatal("expected partial state to be discarded")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRun_MaxInterfaces(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	r := testRunner(f, Config{MaxInterfaces: 2})

	got := interfaceOrder(t, r, Request{Interfaces: []string{"a", "b", "c"}, Metrics: []string{"m"}})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("interfaces=%v, want [a b]", got)
	}
	if _, called := f.calls["c"]; called {
		t.Fatal("capped interface was fetched")
	}
}

func TestRun_StrictRange(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	r := NewRunner(f, Config{Batch: batch.Config{StrictRange: true}})

	_, err := r.Run(context.Background(), Request{Interfaces: []string{"a"}, Metrics: []string{"m"}, Start: 2000, End: 1000})
	var ire *model.InvalidRangeError
	if !errors.As(err, &ire) {
		t.Fatalf("expected InvalidRangeError, got %v", err)
	}
}

func TestRun_RequiresMetrics(t *testing.T) {
	t.Parallel()

	r := NewRunner(newFakeFetcher(), Config{})
	if _, err := r.Run(context.Background(), Request{Interfaces: []string{"a"}}); err == nil {
		t.Fatal("expected error without metrics")
	}
}

func TestParseFailurePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"", FailFast, false},
		{"fail-fast", FailFast, false},
		{"Best-Effort", BestEffort, false},
		{"retry", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFailurePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseFailurePolicy(%q) err=%v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseFailurePolicy(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
