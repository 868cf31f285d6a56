package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/auxreport/internal/model"
)

func TestParseBound(t *testing.T) {
	t.Parallel()

	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in       string
		endOfDay bool
		want     int64
		wantErr  bool
	}{
		{"", false, 0, false},
		{"1700000000000", false, 1700000000000, false},
		{"2024-01-01", false, jan1.UnixMilli(), false},
		{"2024-01-01", true, jan1.Add(24*time.Hour - time.Second).UnixMilli(), false},
		{"2024-01-01T12:00:00Z", true, jan1.Add(12 * time.Hour).UnixMilli(), false},
		{"2024-01-01 06:30", false, jan1.Add(6*time.Hour + 30*time.Minute).UnixMilli(), false},
		{"-5", false, 0, true},
		{"next tuesday", false, 0, true},
	}
	for _, tc := range tests {
		got, err := parseBound(tc.in, time.UTC, tc.endOfDay)
		if (err != nil) != tc.wantErr {
			t.Fatalf("parseBound(%q) err=%v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("parseBound(%q, %v) = %d, want %d", tc.in, tc.endOfDay, got, tc.want)
		}
	}
}

func TestParseBound_Location(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	got, err := parseBound("2024-01-01", loc, false)
	if err != nil {
		t.Fatalf("parseBound: %v", err)
	}
	want := time.Date(2023, time.December, 31, 22, 0, 0, 0, time.UTC).UnixMilli()
	if got != want {
		t.Fatalf("parseBound in UTC+2 = %d, want %d", got, want)
	}
}

type fakeLister map[string]*model.NodeResources

func (f fakeLister) NodeResources(_ context.Context, node string) (*model.NodeResources, error) {
	if res, ok := f[node]; ok {
		return res, nil
	}
	return nil, errors.New("unknown node")
}

func TestPlanJobs(t *testing.T) {
	t.Parallel()

	lister := fakeLister{
		"lb:1": {Node: "lb:1", Label: "10.0.0.1 (east-1)", Interfaces: []string{"vs-a"}, Metrics: []string{"ifHCOutOctets"}},
		"lb:2": {Node: "lb:2", Label: "10.0.0.2 (east-2)", Interfaces: []string{"vs-b"}},
		"lb:3": {Node: "lb:3", Label: "10.0.0.3 (empty)"},
	}

	jobs, err := planJobs(context.Background(), appConfig{Nodes: []string{"lb:1,lb:2"}}, lister, nil)
	if err != nil {
		t.Fatalf("planJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].title != "east-1:east-2" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if strings.Join(jobs[0].interfaces, ",") != "vs-a,vs-b" || strings.Join(jobs[0].metrics, ",") != "ifHCOutOctets" {
		t.Fatalf("job = %+v", jobs[0])
	}

	explicit, err := planJobs(context.Background(), appConfig{Interfaces: []string{"vs-z"}, Nodes: []string{"lb:1,lb:2"}}, lister, nil)
	if err != nil {
		t.Fatalf("planJobs explicit: %v", err)
	}
	if len(explicit) != 1 || explicit[0].interfaces[0] != "vs-z" || len(explicit[0].metrics) != 2 {
		t.Fatalf("explicit jobs = %+v", explicit)
	}

	if _, err := planJobs(context.Background(), appConfig{}, lister, nil); err == nil {
		t.Fatal("expected error without interfaces or nodes")
	}
	if _, err := planJobs(context.Background(), appConfig{}, lister, []string{"lb:3"}); err == nil {
		t.Fatal("expected error for a pair without virtual servers")
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := newRootCommand(&out, &out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "Version:    dev") {
		t.Fatalf("version output = %q", out.String())
	}
}
