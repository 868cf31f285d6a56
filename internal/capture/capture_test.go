package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/auxreport/internal/model"
)

type stubFetcher struct {
	calls int
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, interfaceID string, metrics []string, w model.Window) (*model.MeasurementResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	resp := &model.MeasurementResponse{Timestamps: []int64{w.Start, w.End}}
	for i, m := range metrics {
		resp.Labels = append(resp.Labels, m)
		resp.Columns = append(resp.Columns, model.Column{Values: []model.Value{model.Some(float64(i + 1)), model.Missing()}})
		resp.Metadata.Resources = append(resp.Metadata.Resources, model.Resource{ID: interfaceID, Label: "dev"})
	}
	return resp, nil
}

func TestRecordAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.capture")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	upstream := &stubFetcher{}
	rec := NewRecorder(upstream, j)

	ctx := context.Background()
	w1 := model.Window{Start: 1000, End: 2000}
	w2 := model.Window{Start: 2001, End: 3000}
	for _, call := range []struct {
		iface string
		w     model.Window
	}{{"a", w1}, {"a", w2}, {"b", w1}} {
		if _, err := rec.Fetch(ctx, call.iface, []string{"in", "out"}, call.w); err != nil {
			t.Fatalf("Fetch %s: %v", call.iface, err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if upstream.calls != 3 {
		t.Fatalf("upstream calls=%d, want 3", upstream.calls)
	}

	rp, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rp.Len() != 3 {
		t.Fatalf("Len=%d, want 3", rp.Len())
	}
	if got := rp.Interfaces(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Interfaces=%v", got)
	}
	if got := rp.Metrics(); len(got) != 2 || got[0] != "in" || got[1] != "out" {
		t.Fatalf("Metrics=%v", got)
	}
	if got := rp.Window(); got.Start != 1000 || got.End != 3000 {
		t.Fatalf("Window=%+v", got)
	}

	resp, err := rp.Fetch(ctx, "a", nil, w2)
	if err != nil {
		t.Fatalf("replay Fetch: %v", err)
	}
	if err := resp.Validate("a"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v, ok := resp.Columns[1].Values[0].Get(); !ok || v != 2 {
		t.Fatalf("replayed value=%v", resp.Columns[1].Values[0])
	}
	if resp.Columns[0].Values[1].Valid() {
		t.Fatalf("missing value did not survive the round trip")
	}

	_, err = rp.Fetch(ctx, "b", nil, w2)
	var fe *model.FetchError
	if !errors.As(err, &fe) || !errors.Is(err, ErrNotCaptured) {
		t.Fatalf("expected not-captured FetchError, got %v", err)
	}
}

func TestRecorderPassesErrorsThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.capture")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	boom := errors.New("boom")
	rec := NewRecorder(&stubFetcher{err: boom}, j)
	if _, err := rec.Fetch(context.Background(), "a", []string{"m"}, model.Window{Start: 1, End: 2}); !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	n := 0
	if err := ReadFile(path, func(*Entry) error { n++; return nil }); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if n != 0 {
		t.Fatalf("failed fetch was captured: %d entries", n)
	}
}

func TestOpenTruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.capture")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	resp := &model.MeasurementResponse{}
	if _, err := j.Append(Entry{Interface: "a", Response: resp}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"seq":999,"interface":`); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close torn writer: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	seq, err := j2.Append(Entry{Interface: "b", Response: resp})
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if seq != 2 {
		t.Fatalf("seq=%d, want 2", seq)
	}
	if err := j2.Close(); err != nil {
		t.Fatalf("Close second: %v", err)
	}

	var ifaces []string
	if err := ReadFile(path, func(e *Entry) error {
		ifaces = append(ifaces, e.Interface)
		return nil
	}); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(ifaces) != 2 || ifaces[0] != "a" || ifaces[1] != "b" {
		t.Fatalf("entries=%v, want [a b]", ifaces)
	}
}
