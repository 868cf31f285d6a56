package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tinytelemetry/auxreport/internal/aggregate"
	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/stats"
	"github.com/tinytelemetry/auxreport/internal/trend"
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)

	outBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Background(lipgloss.Color("39"))
	inBarStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Background(lipgloss.Color("42"))
)

const (
	defaultChartHeight = 8
	hourBarWidth       = 2
	hourBarGap         = 1
)

var printer = message.NewPrinter(language.English)

// FormatNumber renders v with thousands separators and two decimals.
func FormatNumber(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// FormatValue renders a present value like FormatNumber and a missing one
// as "-".
func FormatValue(v model.Value) string {
	f, ok := v.Get()
	if !ok {
		return "-"
	}
	return FormatNumber(f)
}

// TextOutput renders a human-readable report for terminals.
type TextOutput struct {
	Options Options
}

func (t *TextOutput) OutputReport(res *aggregate.Result, w io.Writer) error {
	if res == nil {
		return fmt.Errorf("render: nil result")
	}
	loc := t.Options.Location
	if loc == nil {
		loc = time.Local
	}

	var sb strings.Builder
	t.writeHeader(&sb, res, loc)

	global := res.Global()
	if global != nil {
		sb.WriteString(sectionStyle.Render("Global"))
		sb.WriteString("\n")
		sb.WriteString(summaryTable(res.Metrics, global.Summary))
		sb.WriteString("\n\n")
	}

	for _, dev := range res.Devices() {
		sb.WriteString(sectionStyle.Render("Device " + dev.Key.ID))
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  %d interfaces", len(dev.Members))))
		sb.WriteString("\n")
		sb.WriteString(summaryTable(res.Metrics, dev.Summary))
		sb.WriteString("\n\n")
	}

	for _, metric := range res.Metrics {
		ranked := res.Top(metric, t.Options.TopN)
		if len(ranked) == 0 {
			continue
		}
		sb.WriteString(sectionStyle.Render("Top " + metric))
		sb.WriteString("\n")
		sb.WriteString(topTable(res, metric, ranked))
		sb.WriteString("\n\n")
	}

	if global != nil {
		pair := trend.ByteMetrics(res.Metrics)
		if chart := t.hourChart(global, pair); chart != "" {
			sb.WriteString(sectionStyle.Render("Hour of day"))
			sb.WriteString("  ")
			sb.WriteString(outBarStyle.Render("  ") + " " + pair.OutLabel + "  ")
			sb.WriteString(inBarStyle.Render("  ") + " " + pair.InLabel)
			sb.WriteString("\n")
			sb.WriteString(chart)
			sb.WriteString("\n\n")
		}

		sb.WriteString(sectionStyle.Render("Day of week"))
		sb.WriteString("\n")
		sb.WriteString(weekdayTable(global, pair, t.Options.Bits))
		sb.WriteString("\n\n")

		spans := trend.Weekends(global, trend.Options{Location: loc})
		if len(spans) > 0 {
			sb.WriteString(sectionStyle.Render("Weekends"))
			sb.WriteString("\n")
			for _, s := range spans {
				sb.WriteString(fmt.Sprintf("  %s  →  %s\n", s.Start.Format("Mon 2006-01-02 15:04"), s.End.Format("Mon 2006-01-02 15:04")))
			}
			sb.WriteString("\n")
		}
	}

	if len(res.Meta.Gaps) > 0 {
		sb.WriteString(warnStyle.Render(fmt.Sprintf("Skipped %d interfaces", len(res.Meta.Gaps))))
		sb.WriteString("\n")
		for _, gap := range res.Meta.Gaps {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", gap.Interface, dimStyle.Render(gap.Error)))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (t *TextOutput) writeHeader(sb *strings.Builder, res *aggregate.Result, loc *time.Location) {
	title := t.Options.Title
	if title == "" {
		title = "Traffic report"
	}
	meta := res.Meta
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(fmt.Sprintf("run %s · generated %s", meta.ID, meta.Generated.In(loc).Format(time.RFC3339))))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Range:      %s → %s\n",
		meta.Range.Start.In(loc).Format("2006-01-02 15:04:05"),
		meta.Range.End.In(loc).Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Interfaces: %d\n", meta.Count))
	sb.WriteString(fmt.Sprintf("Elapsed:    %s\n\n", meta.Elapsed.Round(time.Millisecond)))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		})
}

func summaryTable(metrics []string, summaries map[string]stats.Summary) string {
	tbl := newTable("Metric", "Min", "Max", "Average", "Total")
	for _, metric := range metrics {
		s := summaries[metric]
		tbl.Row(metric, FormatNumber(s.Min), FormatNumber(s.Max), FormatNumber(s.Average), FormatNumber(s.Total))
	}
	return tbl.String()
}

func topTable(res *aggregate.Result, metric string, ranked []stats.Ranked) string {
	tbl := newTable("#", "VIP", "Average", "Peak")
	for i, r := range ranked {
		peak := "-"
		if snap, ok := res.Group(model.InterfaceKey(r.ID)); ok {
			if s := snap.Summary[metric]; !s.Empty() {
				peak = FormatNumber(s.Max)
			}
		}
		tbl.Row(fmt.Sprintf("%d", i+1), r.ID, FormatNumber(r.Value), peak)
	}
	return tbl.String()
}

func weekdayTable(snap *aggregate.Snapshot, pair trend.Pair, bits bool) string {
	tbl := newTable("Day", pair.OutLabel, pair.InLabel)
	for d, day := range snap.Days {
		out, in := day.Total[pair.Out], day.Total[pair.In]
		if bits {
			out, in = scaleValue(out, 8), scaleValue(in, 8)
		}
		tbl.Row(trend.DayName(d), FormatValue(out), FormatValue(in))
	}
	return tbl.String()
}

func scaleValue(v model.Value, factor float64) model.Value {
	f, ok := v.Get()
	if !ok {
		return v
	}
	return model.Some(f * factor)
}

// hourChart draws the hour-of-day histogram as 24 stacked bars of the
// outbound and inbound octet metrics. It returns "" when no hour has data.
func (t *TextOutput) hourChart(snap *aggregate.Snapshot, pair trend.Pair) string {
	scale := 1.0
	if t.Options.Bits {
		scale = 8
	}
	width := t.Options.ChartWidth
	if minWidth := 24 * (hourBarWidth + hourBarGap); width < minWidth {
		width = minWidth
	}

	bc := barchart.New(width, defaultChartHeight,
		barchart.WithBarGap(hourBarGap),
		barchart.WithBarWidth(hourBarWidth),
		barchart.WithNoAxis(),
	)

	hasData := false
	for h := 0; h < 24; h++ {
		out := snap.Hours[h][pair.Out].Or(0) * scale
		in := snap.Hours[h][pair.In].Or(0) * scale
		if out > 0 || in > 0 {
			hasData = true
		}
		bc.Push(barchart.BarData{
			Label: trend.HourLabel(h),
			Values: []barchart.BarValue{
				{Name: pair.OutLabel, Value: out, Style: outBarStyle},
				{Name: pair.InLabel, Value: in, Style: inBarStyle},
			},
		})
	}
	if !hasData {
		return ""
	}
	bc.Draw()

	var axis strings.Builder
	for h := 0; h < 24; h += 6 {
		label := fmt.Sprintf("%02d", h)
		axis.WriteString(label)
		axis.WriteString(strings.Repeat(" ", 6*(hourBarWidth+hourBarGap)-len(label)))
	}
	return bc.View() + "\n" + dimStyle.Render(strings.TrimRight(axis.String(), " "))
}
