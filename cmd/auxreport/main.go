package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tinytelemetry/auxreport/internal/capture"
	"github.com/tinytelemetry/auxreport/internal/logging"
	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/opennms"
	"github.com/tinytelemetry/auxreport/internal/render"
	"github.com/tinytelemetry/auxreport/internal/report"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "auxreport",
		Short:         "Traffic reports for load-balancer virtual servers",
		Long:          "auxreport fetches per-interface traffic measurements from an OpenNMS server and aggregates them into interface, device and global reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $HOME/.config/auxreport/config.yml)")

	cmd.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newNodesCmd(a),
		newVersionCmd(),
	)

	cmd.SetVersionTemplate(fmt.Sprintf("auxreport {{.Version}} (commit %s, built %s)\n", commit, buildTime))
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "auxreport - Traffic Report Aggregator\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", goVersion)
		},
	}
}

// load reads the configuration with the command's flags layered on top.
func (a *app) load(cmd *cobra.Command) (appConfig, error) {
	return loadConfig(a.configPath, func(v *viper.Viper) error {
		return v.BindPFlags(cmd.Flags())
	})
}

// setup loads config and builds the logger.
func (a *app) setup(cmd *cobra.Command) (appConfig, *zap.Logger, func(), error) {
	cfg, err := a.load(cmd)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, flush, err := logging.New(cfg.loggingConfig())
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, logger, flush, nil
}

func newClient(cfg appConfig, logger *zap.Logger) (*opennms.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("no OpenNMS url configured (set url in the config file or AUXREPORT_URL)")
	}
	return opennms.New(cfg.URL,
		opennms.WithBasicAuth(cfg.Username, cfg.Password),
		opennms.WithTimeout(cfg.RequestTimeout),
		opennms.WithStep(cfg.Step),
		opennms.WithLogger(logger),
	)
}

type runOptions struct {
	start   string
	end     string
	pairs   []string
	capture string
	replay  string
	output  string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, aggregate and print one report per node pair",
		Long: `Fetch, aggregate and print one report per node pair.

Interfaces come from --interfaces when set, otherwise from discovering the
virtual servers of every configured node pair. --start and --end accept
epoch milliseconds, RFC 3339 timestamps or plain dates; a plain --end date
covers the whole day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runReports(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.start, "start", "", "range start (default: lookback before end)")
	f.StringVar(&opts.end, "end", "", "range end (default: now)")
	f.StringArrayVar(&opts.pairs, "pair", nil, `node pair to report on, e.g. "lb:1,lb:2" (default: every configured pair)`)
	f.StringVar(&opts.capture, "capture", "", "append every upstream response to this journal file")
	f.StringVar(&opts.replay, "replay", "", "serve responses from a capture journal instead of OpenNMS")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to a file instead of stdout")

	f.String("url", "", "OpenNMS REST base url")
	f.String("username", "", "OpenNMS user")
	f.StringSlice("interfaces", nil, "interface resource ids (skips node discovery)")
	f.StringSlice("metrics", nil, "metric attributes to request")
	f.Int("concurrency", 0, "parallel interface fetches")
	f.String("failure-policy", "", "fail-fast or best-effort")
	f.String("timezone", "", "IANA zone for hour and day buckets (default: local)")
	f.Int("max-interfaces", 0, "cap on interfaces per report")
	f.Bool("strict-range", false, "reject inverted ranges instead of using the default window")
	f.Duration("run-timeout", 0, "abort a report run after this long")
	f.StringP("format", "f", "", "output format: "+strings.Join(render.Formats, ", "))
	f.Int("top", 0, "rows in each top table (0 = all)")
	f.Bool("bits", false, "show octet metrics as bits")
	f.String("log-level", "", "log level")
	return cmd
}

type reportJob struct {
	title      string
	interfaces []string
	metrics    []string
}

func (a *app) runReports(cmd *cobra.Command, opts runOptions) error {
	cfg, logger, flush, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer flush()

	start, err := parseBound(opts.start, cfg.location, false)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := parseBound(opts.end, cfg.location, true)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		fetcher model.MeasurementFetcher
		jobs    []reportJob
	)
	if opts.replay != "" {
		replayer, err := capture.Load(opts.replay)
		if err != nil {
			return fmt.Errorf("loading capture: %w", err)
		}
		if replayer.Len() == 0 {
			return fmt.Errorf("capture %s holds no responses", opts.replay)
		}
		logger.Info("replaying capture", zap.String("path", opts.replay), zap.Int("responses", replayer.Len()))
		fetcher = replayer
		if start == 0 && end == 0 {
			w := replayer.Window()
			start, end = w.Start, w.End
		}
		interfaces := cfg.Interfaces
		if len(interfaces) == 0 {
			interfaces = replayer.Interfaces()
		}
		jobs = []reportJob{{
			title:      "Replay " + filepath.Base(opts.replay),
			interfaces: interfaces,
			metrics:    cfg.metricsOr(replayer.Metrics()),
		}}
	} else {
		client, err := newClient(cfg, logger)
		if err != nil {
			return err
		}
		fetcher = client
		if opts.capture != "" {
			j, err := capture.Open(opts.capture)
			if err != nil {
				return fmt.Errorf("opening capture: %w", err)
			}
			defer j.Close()
			fetcher = capture.NewRecorder(client, j)
		}
		jobs, err = planJobs(ctx, cfg, client, opts.pairs)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		file, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	runner := report.NewRunner(fetcher, cfg.runnerConfig(), report.WithLogger(logger))
	for _, job := range jobs {
		if err := runJob(ctx, runner, cfg, job, start, end, out); err != nil {
			return err
		}
	}
	return nil
}

func runJob(ctx context.Context, runner *report.Runner, cfg appConfig, job reportJob, start, end int64, out io.Writer) error {
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}
	res, err := runner.Run(ctx, report.Request{
		Interfaces: job.interfaces,
		Metrics:    job.metrics,
		Start:      start,
		End:        end,
	})
	if err != nil {
		if job.title != "" {
			return fmt.Errorf("report %s: %w", job.title, err)
		}
		return err
	}
	output, err := render.New(cfg.Format, cfg.renderOptions(job.title))
	if err != nil {
		return err
	}
	return output.OutputReport(res, out)
}

// planJobs builds one job from explicit interfaces, or one job per node
// pair from discovery.
func planJobs(ctx context.Context, cfg appConfig, lister model.ResourceLister, pairs []string) ([]reportJob, error) {
	if len(cfg.Interfaces) > 0 {
		return []reportJob{{interfaces: cfg.Interfaces, metrics: cfg.metricsOr(nil)}}, nil
	}
	if len(pairs) == 0 {
		pairs = cfg.Nodes
	}
	if len(pairs) == 0 {
		return nil, errors.New("no interfaces or node pairs configured")
	}

	jobs := make([]reportJob, 0, len(pairs))
	for _, pair := range pairs {
		d, err := report.Discover(ctx, lister, report.ParsePair(pair))
		if err != nil {
			return nil, err
		}
		if len(d.Interfaces) == 0 {
			return nil, fmt.Errorf("node pair %q has no virtual servers", pair)
		}
		jobs = append(jobs, reportJob{
			title:      d.Name,
			interfaces: d.Interfaces,
			metrics:    cfg.metricsOr(d.Metrics),
		})
	}
	return jobs, nil
}

var boundLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseBound turns a range flag into epoch milliseconds. Empty means
// absent (0). A plain date is the start of that day, or its last second
// when endOfDay is set.
func parseBound(s string, loc *time.Location, endOfDay bool) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if loc == nil {
		loc = time.Local
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative timestamp %d", ms)
		}
		return ms, nil
	}
	if day, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		if endOfDay {
			y, m, d := day.Date()
			day = time.Date(y, m, d, 23, 59, 59, 0, loc)
		}
		return day.UnixMilli(), nil
	}
	for _, layout := range boundLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized time %q (want YYYY-MM-DD, RFC 3339 or epoch milliseconds)", s)
}
