package trend

import (
	"testing"
	"time"

	"github.com/tinytelemetry/auxreport/internal/aggregate"
	"github.com/tinytelemetry/auxreport/internal/model"
)

func hourlyTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func TestFindWeekendSpans_FridayToMonday(t *testing.T) {
	t.Parallel()

	// Friday 2024-01-05 23:00 through Monday 2024-01-08 01:00.
	start := time.Date(2024, time.January, 5, 23, 0, 0, 0, time.UTC)
	times := hourlyTimes(start, 51)

	spans := FindWeekendSpans(times)
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d: %v", len(spans), spans)
	}
	wantStart := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)
	if !spans[0].Start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", spans[0].Start, wantStart)
	}
	if !spans[0].End.Equal(wantEnd) {
		t.Fatalf("end = %v, want %v", spans[0].End, wantEnd)
	}
}

func TestFindWeekendSpans_Cases(t *testing.T) {
	t.Parallel()

	saturday := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		times []time.Time
		want  []Span
	}{
		{name: "empty"},
		{
			name:  "weekdays only",
			times: hourlyTimes(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 48),
		},
		{
			name:  "open at end closes on last timestamp",
			times: hourlyTimes(saturday, 10),
			want:  []Span{{Start: saturday, End: saturday.Add(9 * time.Hour)}},
		},
		{
			name: "two weekends",
			times: []time.Time{
				saturday.Add(-time.Hour),
				saturday,
				saturday.AddDate(0, 0, 2),
				saturday.AddDate(0, 0, 7),
				saturday.AddDate(0, 0, 8),
				saturday.AddDate(0, 0, 9),
			},
			want: []Span{
				{Start: saturday, End: saturday.AddDate(0, 0, 2)},
				{Start: saturday.AddDate(0, 0, 7), End: saturday.AddDate(0, 0, 9)},
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FindWeekendSpans(tc.times)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d spans, want %d: %v", len(got), len(tc.want), got)
			}
			for i := range got {
				if !got[i].Start.Equal(tc.want[i].Start) || !got[i].End.Equal(tc.want[i].End) {
					t.Fatalf("span %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestByteMetrics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		metrics []string
		out, in string
	}{
		{nil, "ifHCOutOctets", "ifHCInOctets"},
		{[]string{"ifHCInOctets", "ifHCOutOctets", "ifOutOctets", "ifInOctets"}, "ifHCOutOctets", "ifHCInOctets"},
		{[]string{"ifInOctets", "ifOutOctets"}, "ifOutOctets", "ifInOctets"},
		{[]string{"vsBytesOutOctets", "vsBytesInOctets"}, "vsBytesOutOctets", "vsBytesInOctets"},
	}
	for _, tc := range tests {
		got := ByteMetrics(tc.metrics)
		if got.Out != tc.out || got.In != tc.in {
			t.Fatalf("ByteMetrics(%v) = %s/%s, want %s/%s", tc.metrics, got.Out, got.In, tc.out, tc.in)
		}
		if got.OutLabel != "Bytes Out" || got.InLabel != "Bytes In" {
			t.Fatalf("unexpected labels %q/%q", got.OutLabel, got.InLabel)
		}
	}
}

func finalized(t *testing.T, values map[string][]model.Value, stamps []int64) *aggregate.Snapshot {
	t.Helper()

	e := aggregate.NewEngine(aggregate.Config{Location: time.UTC})
	resp := &model.MeasurementResponse{Timestamps: stamps}
	for _, metric := range []string{DefaultOutMetric, DefaultInMetric} {
		resp.Labels = append(resp.Labels, metric)
		resp.Columns = append(resp.Columns, model.Column{Values: values[metric]})
		resp.Metadata.Resources = append(resp.Metadata.Resources, model.Resource{Label: "dev"})
	}
	if err := e.Ingest("vip", resp); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	res, err := e.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	snap, ok := res.Group(model.InterfaceKey("vip"))
	if !ok {
		t.Fatalf("missing interface snapshot")
	}
	return snap
}

func TestScatterTrend(t *testing.T) {
	t.Parallel()

	// Monday 10:00 and 11:00 UTC.
	base := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	stamps := []int64{base.UnixMilli(), base.Add(time.Hour).UnixMilli()}
	snap := finalized(t, map[string][]model.Value{
		DefaultOutMetric: {model.Some(100), model.Some(300)},
		DefaultInMetric:  {model.Some(0), model.Missing()},
	}, stamps)

	s := ScatterTrend(snap, ByteMetrics(nil), Options{})

	// Monday average row, two Monday hour rows, two Average column rows.
	if s.Len() != 5 {
		t.Fatalf("expected 5 points, got %d: %+v", s.Len(), s)
	}
	want := []struct {
		x, y, c string
		z       float64
	}{
		{"Monday", "average", "Bytes Out", 200},
		{"Monday", "10:00", "Bytes Out", 100},
		{"Monday", "11:00", "Bytes Out", 300},
		{"Average", "10:00", "Bytes Out", 100},
		{"Average", "11:00", "Bytes Out", 300},
	}
	for i, w := range want {
		if s.X[i] != w.x || s.Y[i] != w.y || s.C[i] != w.c || s.Z[i] != w.z {
			t.Fatalf("point %d = (%s,%s,%v,%s), want %+v", i, s.X[i], s.Y[i], s.Z[i], s.C[i], w)
		}
	}

	bits := ScatterTrend(snap, ByteMetrics(nil), Options{Bits: true})
	if bits.Z[0] != 1600 {
		t.Fatalf("expected bit scaling, got %v", bits.Z[0])
	}
}

func TestTimeLines(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	stamps := []int64{base.UnixMilli(), base.Add(time.Hour).UnixMilli()}
	snap := finalized(t, map[string][]model.Value{
		DefaultOutMetric: {model.Some(5), model.Missing()},
		DefaultInMetric:  {model.Some(7), model.Some(9)},
	}, stamps)

	out, in := TimeLines(snap, ByteMetrics(nil), Options{Location: time.UTC})
	if len(out.X) != 2 || len(in.X) != 2 {
		t.Fatalf("unexpected lengths %d/%d", len(out.X), len(in.X))
	}
	if out.Y[0] != -5 || out.Y[1] != 0 {
		t.Fatalf("out = %v", out.Y)
	}
	if in.Y[0] != 7 || in.Y[1] != 9 {
		t.Fatalf("in = %v", in.Y)
	}
	if !out.X[0].Equal(base) || out.X[0].Location() != time.UTC {
		t.Fatalf("x[0] = %v", out.X[0])
	}
	if out.Label != "Bytes Out" || in.Label != "Bytes In" {
		t.Fatalf("labels %q/%q", out.Label, in.Label)
	}
}

func TestWeekends_UsesLocation(t *testing.T) {
	t.Parallel()

	// Friday 23:00 UTC is Saturday 01:00 at +2.
	base := time.Date(2024, time.January, 5, 23, 0, 0, 0, time.UTC)
	snap := finalized(t, map[string][]model.Value{
		DefaultOutMetric: {model.Some(1)},
		DefaultInMetric:  {model.Some(1)},
	}, []int64{base.UnixMilli()})

	if spans := Weekends(snap, Options{Location: time.UTC}); len(spans) != 0 {
		t.Fatalf("expected no weekend in UTC, got %v", spans)
	}
	spans := Weekends(snap, Options{Location: time.FixedZone("plus2", 2*60*60)})
	if len(spans) != 1 {
		t.Fatalf("expected a weekend at +2, got %v", spans)
	}
}
