// Package render writes finalized report results as terminal text, JSON or
// YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/auxreport/internal/aggregate"
)

// Output writes one finalized result.
type Output interface {
	OutputReport(*aggregate.Result, io.Writer) error
}

// OutputFunc adapts a function to Output.
type OutputFunc func(*aggregate.Result, io.Writer) error

func (fn OutputFunc) OutputReport(res *aggregate.Result, w io.Writer) error {
	return fn(res, w)
}

// Options tune text rendering.
type Options struct {
	// Title heads the text report, e.g. the node pair name.
	Title string
	// TopN limits ranking tables. Zero shows every entry.
	TopN int
	// Bits scales octet metrics by 8 in charts.
	Bits bool
	// Location formats timestamps. Defaults to time.Local.
	Location *time.Location
	// ChartWidth of the hour-of-day chart in cells.
	ChartWidth int
}

// Formats lists the accepted format names.
var Formats = []string{"text", "json", "yaml"}

// New returns the Output for a format name.
func New(format string, opts Options) (Output, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return &TextOutput{Options: opts}, nil
	case "json":
		return &JSONOutput{}, nil
	case "yaml", "yml":
		return &YAMLOutput{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

type JSONOutput struct{}

func (p *JSONOutput) OutputReport(res *aggregate.Result, w io.Writer) error {
	data, err := json.MarshalIndent(res, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

type YAMLOutput struct{}

func (p *YAMLOutput) OutputReport(res *aggregate.Result, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return err
	}
	return enc.Close()
}
