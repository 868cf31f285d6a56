package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tinytelemetry/auxreport/internal/aggregate"
	"github.com/tinytelemetry/auxreport/internal/logging"
	"github.com/tinytelemetry/auxreport/internal/metrics"
	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/report"
	"github.com/tinytelemetry/auxreport/internal/trend"
)

// ReportRunner is the narrow runner contract required by the HTTP API.
type ReportRunner interface {
	Run(ctx context.Context, req report.Request) (*aggregate.Result, error)
}

// Server provides an HTTP API for running traffic reports.
type Server struct {
	addr       string
	runner     ReportRunner
	interfaces []string
	metrics    []string
	timeout    time.Duration
	location   *time.Location
	logger     *zap.Logger
	server     *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	startTime  time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithDefaults sets the interfaces and metrics used when a request names
// none.
func WithDefaults(interfaces, metrics []string) Option {
	return func(s *Server) {
		s.interfaces = interfaces
		s.metrics = metrics
	}
}

// WithRunTimeout bounds every report run started by a request.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithLocation sets the zone used for trend projections.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, runner ReportRunner, opts ...Option) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:     addr,
		runner:   runner,
		location: time.Local,
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.instrument())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/report", s.handleReport)
	r.GET("/api/report/topn/:metric", s.handleTopN)
	r.GET("/api/report/trend", s.handleTrend)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()
	s.logger.Info("http api listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", elapsed),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReport(c *gin.Context) {
	res, ok := s.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleTopN(c *gin.Context) {
	metric := c.Param("metric")
	n := 0
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
			return
		}
		n = v
	}

	res, ok := s.run(c)
	if !ok {
		return
	}
	if _, known := res.TopN[metric]; !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown metric " + strconv.Quote(metric)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     res.Meta.ID,
		"metric": metric,
		"ranked": res.Top(metric, n),
	})
}

func (s *Server) handleTrend(c *gin.Context) {
	view := c.DefaultQuery("view", "scatter")
	switch view {
	case "scatter", "lines", "weekends":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "view must be scatter, lines or weekends"})
		return
	}
	bits := c.Query("bits") == "true"

	res, ok := s.run(c)
	if !ok {
		return
	}

	snap := res.Global()
	if device := c.Query("device"); device != "" {
		snap, ok = res.Group(model.DeviceKey(device))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown device " + strconv.Quote(device)})
			return
		}
	}

	opts := trend.Options{Bits: bits, Location: s.location}
	pair := trend.ByteMetrics(res.Metrics)
	body := gin.H{"id": res.Meta.ID, "view": view, "key": snap.Key}
	switch view {
	case "scatter":
		body["scatter"] = trend.ScatterTrend(snap, pair, opts)
	case "lines":
		out, in := trend.TimeLines(snap, pair, opts)
		body["lines"] = []trend.LineSeries{out, in}
	case "weekends":
		body["weekends"] = trend.Weekends(snap, opts)
	}
	c.JSON(http.StatusOK, body)
}

// run parses the report query and executes one run. It writes the error
// response itself and reports false when the request failed.
func (s *Server) run(c *gin.Context) (*aggregate.Result, bool) {
	req, err := s.parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	ctx := c.Request.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.logger.Warn("report run failed", zap.Int("status", code), zap.Error(err))
		}
		body := gin.H{"error": err.Error()}
		if iface, ok := model.FailedInterface(err); ok {
			body["interface"] = iface
		}
		c.JSON(code, body)
		return nil, false
	}
	return res, true
}

func (s *Server) parseRequest(c *gin.Context) (report.Request, error) {
	req := report.Request{
		Interfaces: splitList(c.QueryArray("interfaces")),
		Metrics:    splitList(c.QueryArray("metrics")),
	}
	if len(req.Interfaces) == 0 {
		req.Interfaces = s.interfaces
	}
	if len(req.Metrics) == 0 {
		req.Metrics = s.metrics
	}
	if len(req.Interfaces) == 0 {
		return req, errors.New("no interfaces requested")
	}
	if len(req.Metrics) == 0 {
		return req, errors.New("no metrics requested")
	}

	var err error
	if req.Start, err = parseMillis(c.Query("start")); err != nil {
		return req, errors.New("start must be epoch milliseconds")
	}
	if req.End, err = parseMillis(c.Query("end")); err != nil {
		return req, errors.New("end must be epoch milliseconds")
	}
	return req, nil
}

// statusFor maps run errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		invalid   *model.InvalidRangeError
		malformed *model.MalformedResponseError
		fetch     *model.FetchError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &fetch), errors.As(err, &malformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseMillis(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
