// Package report orchestrates one report run: it plans the batch windows,
// fetches every interface with bounded parallelism and folds the responses
// into a fresh aggregation engine in request order.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/auxreport/internal/aggregate"
	"github.com/tinytelemetry/auxreport/internal/batch"
	"github.com/tinytelemetry/auxreport/internal/logging"
	"github.com/tinytelemetry/auxreport/internal/metrics"
	"github.com/tinytelemetry/auxreport/internal/model"
)

// FailurePolicy decides what a failed interface does to the run.
type FailurePolicy string

const (
	// FailFast aborts the run on the first failed interface.
	FailFast FailurePolicy = "fail-fast"
	// BestEffort drops a failed interface entirely and records a gap.
	BestEffort FailurePolicy = "best-effort"
)

// ParseFailurePolicy validates a policy name. Empty means FailFast.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailFast:
		return FailFast, nil
	case BestEffort:
		return BestEffort, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want %s or %s)", s, FailFast, BestEffort)
}

// Config holds run-independent runner settings.
type Config struct {
	Concurrency   int
	Policy        FailurePolicy
	MaxInterfaces int
	Location      *time.Location
	Batch         batch.Config
}

// Request selects what one run aggregates. Start and End are epoch
// milliseconds; zero means absent.
type Request struct {
	Interfaces []string
	Metrics    []string
	Start      int64
	End        int64
}

// Runner executes report runs against one fetcher. A Runner is safe for
// concurrent use; every run owns its engine.
type Runner struct {
	fetcher model.MeasurementFetcher
	cfg     Config
	planner *batch.Planner
	logger  *zap.Logger
	now     func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = logging.OrNop(l) }
}

// WithClock overrides the wall clock used for run metadata.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(fetcher model.MeasurementFetcher, cfg Config, opts ...Option) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = model.DefaultConcurrency
	}
	if cfg.Policy == "" {
		cfg.Policy = FailFast
	}
	if cfg.MaxInterfaces <= 0 {
		cfg.MaxInterfaces = model.DefaultMaxInterfaces
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	r := &Runner{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if cfg.Batch.Now == nil {
		cfg.Batch.Now = r.now
	}
	r.planner = batch.NewPlanner(cfg.Batch)
	return r
}

// slot carries one interface's fetched batches to the aggregation loop.
// done is closed once responses or err is set.
type slot struct {
	iface     string
	done      chan struct{}
	responses []*model.MeasurementResponse
	err       error
}

// Run executes one report run. On any abort the partially built engine is
// discarded and only the error is returned.
func (r *Runner) Run(ctx context.Context, req Request) (res *aggregate.Result, err error) {
	started := time.Now()
	defer func() {
		metrics.RunDuration.Observe(time.Since(started).Seconds())
		switch {
		case err == nil:
			metrics.RunsTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			metrics.RunsTotal.WithLabelValues("canceled").Inc()
		default:
			metrics.RunsTotal.WithLabelValues("error").Inc()
		}
	}()

	if r.fetcher == nil {
		return nil, errors.New("report: no fetcher configured")
	}
	if len(req.Metrics) == 0 {
		return nil, errors.New("report: no metrics requested")
	}
	ifaces := r.selectInterfaces(req.Interfaces)

	resolved, err := r.planner.Resolve(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	windows, err := r.planner.Plan(resolved.Start, resolved.End)
	if err != nil {
		return nil, err
	}

	engine := aggregate.NewEngine(aggregate.Config{
		Location: r.cfg.Location,
		Range:    model.RangeFromWindow(resolved),
		Now:      r.now,
	})
	log := r.logger.With(zap.String("run_id", engine.RunID()))
	log.Info("report run started",
		zap.Int("interfaces", len(ifaces)),
		zap.Int("windows", len(windows)),
		zap.Strings("metrics", req.Metrics),
		zap.String("policy", string(r.cfg.Policy)),
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(r.cfg.Concurrency)

	slots := make([]slot, len(ifaces))
	for i, iface := range ifaces {
		slots[i] = slot{iface: iface, done: make(chan struct{})}
	}

	aggDone := make(chan error, 1)
	go func() {
		err := r.aggregate(gctx, engine, slots, log)
		if err != nil {
			cancelRun()
		}
		aggDone <- err
	}()

	for i := range slots {
		if gctx.Err() != nil {
			break
		}
		s := &slots[i]
		g.Go(func() error {
			defer close(s.done)
			s.responses, s.err = r.fetchInterface(gctx, s.iface, req.Metrics, windows)
			if s.err == nil {
				return nil
			}
			if r.cfg.Policy == BestEffort && gctx.Err() == nil {
				return nil
			}
			return s.err
		})
	}
	fetchErr := g.Wait()
	aggErr := <-aggDone

	if err := ctx.Err(); err != nil {
		log.Warn("report run canceled", zap.Error(err))
		return nil, err
	}
	if aggErr != nil && !errors.Is(aggErr, context.Canceled) {
		log.Error("report run failed", zap.Error(aggErr))
		return nil, aggErr
	}
	if fetchErr != nil {
		log.Error("report run failed", zap.Error(fetchErr))
		return nil, fetchErr
	}
	if aggErr != nil {
		return nil, aggErr
	}

	res, err = engine.Finalize()
	if err != nil {
		return nil, err
	}
	metrics.InterfacesPerRun.Observe(float64(res.Meta.Count))
	log.Info("report run finished",
		zap.Int("interfaces", res.Meta.Count),
		zap.Int("gaps", len(res.Meta.Gaps)),
		zap.Duration("elapsed", res.Meta.Elapsed),
	)
	return res, nil
}

// aggregate consumes slots strictly in request order so group first-seen
// order never depends on fetch timing.
func (r *Runner) aggregate(ctx context.Context, engine *aggregate.Engine, slots []slot, log *zap.Logger) error {
	for i := range slots {
		s := &slots[i]
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		if s.err != nil {
			if r.cfg.Policy != BestEffort || isContextError(s.err) {
				return s.err
			}
			log.Warn("interface dropped", zap.String("interface", s.iface), zap.Error(s.err))
			metrics.InterfaceGaps.Inc()
			if err := engine.RecordGap(model.Gap{Interface: s.iface, Error: s.err.Error()}); err != nil {
				return err
			}
			continue
		}

		for _, resp := range s.responses {
			if err := engine.Ingest(s.iface, resp); err != nil {
				return fmt.Errorf("ingest %s: %w", s.iface, err)
			}
		}
		s.responses = nil
	}
	return nil
}

// fetchInterface fetches every window of one interface in order and checks
// that the batches agree on the device label, so an interface is either
// ingested whole or not at all.
func (r *Runner) fetchInterface(ctx context.Context, iface string, metricNames []string, windows []model.Window) ([]*model.MeasurementResponse, error) {
	out := make([]*model.MeasurementResponse, 0, len(windows))
	label := ""
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, &model.FetchError{Interface: iface, Window: w, Err: err}
		}
		start := time.Now()
		resp, err := r.fetcher.Fetch(ctx, iface, metricNames, w)
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, classify(iface, w, err)
		}
		if err := resp.Validate(iface); err != nil {
			metrics.FetchErrors.WithLabelValues("malformed").Inc()
			return nil, err
		}
		for _, res := range resp.Metadata.Resources[:len(resp.Columns)] {
			l := res.Label
			if l == "" {
				l = iface
			}
			if label == "" {
				label = l
				continue
			}
			if l != label {
				metrics.FetchErrors.WithLabelValues("malformed").Inc()
				return nil, &model.MalformedResponseError{
					Interface: iface,
					Reason:    fmt.Sprintf("device label changed from %q to %q in %s", label, l, w),
				}
			}
		}
		out = append(out, resp)
	}
	return out, nil
}

// classify makes sure fetch failures carry the interface and window.
func classify(iface string, w model.Window, err error) error {
	var fe *model.FetchError
	var me *model.MalformedResponseError
	switch {
	case errors.As(err, &me):
		metrics.FetchErrors.WithLabelValues("malformed").Inc()
		return err
	case errors.As(err, &fe):
		metrics.FetchErrors.WithLabelValues("fetch").Inc()
		return err
	default:
		metrics.FetchErrors.WithLabelValues("fetch").Inc()
		return &model.FetchError{Interface: iface, Window: w, Err: err}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// selectInterfaces drops blanks and duplicates and applies the per-run cap.
func (r *Runner) selectInterfaces(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, iface := range in {
		iface = strings.TrimSpace(iface)
		if iface == "" {
			continue
		}
		if _, ok := seen[iface]; ok {
			continue
		}
		seen[iface] = struct{}{}
		out = append(out, iface)
	}
	if len(out) > r.cfg.MaxInterfaces {
		r.logger.Warn("interface list truncated",
			zap.Int("requested", len(out)),
			zap.Int("max", r.cfg.MaxInterfaces),
		)
		out = out[:r.cfg.MaxInterfaces]
	}
	return out
}
