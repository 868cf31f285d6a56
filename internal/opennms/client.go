// Package opennms implements the measurement fetcher and resource lister
// against the OpenNMS REST API.
package opennms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/auxreport/internal/model"
)

// Client talks to one OpenNMS REST endpoint with basic auth.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	step       time.Duration
	logger     *zap.Logger
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout bounds every single request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithStep sets the measurement step. Sub-millisecond steps round up to 1ms.
func WithStep(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.step = d
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New constructs a Client for the REST base URL, e.g.
// https://opennms.example.com/opennms/rest.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("opennms base url is required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid opennms base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		step:       model.DefaultStep,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("opennms request failed with status %d", e.Status)
	}
	return fmt.Sprintf("opennms request failed (%d): %s", e.Status, e.Message)
}

type measurementSource struct {
	Aggregation string `json:"aggregation"`
	Attribute   string `json:"attribute"`
	Label       string `json:"label"`
	ResourceID  string `json:"resourceId"`
	Transient   bool   `json:"transient"`
}

type measurementQuery struct {
	Start  int64               `json:"start"`
	End    int64               `json:"end"`
	Step   int64               `json:"step"`
	Source []measurementSource `json:"source"`
}

// Fetch requests the averaged metrics of one interface over w. Transport
// and API failures are returned as *model.FetchError; an undecodable body
// as *model.MalformedResponseError.
func (c *Client) Fetch(ctx context.Context, interfaceID string, metrics []string, w model.Window) (*model.MeasurementResponse, error) {
	step := c.step.Milliseconds()
	if step < 1 {
		step = 1
	}
	query := measurementQuery{
		Start:  w.Start,
		End:    w.End,
		Step:   step,
		Source: make([]measurementSource, 0, len(metrics)),
	}
	for _, metric := range metrics {
		query.Source = append(query.Source, measurementSource{
			Aggregation: "AVERAGE",
			Attribute:   metric,
			Label:       metric,
			ResourceID:  interfaceID,
		})
	}

	data, err := c.do(ctx, http.MethodPost, "/measurements", query)
	if err != nil {
		return nil, &model.FetchError{Interface: interfaceID, Window: w, Err: err}
	}

	// No body (204) means the window holds no data.
	if len(bytes.TrimSpace(data)) == 0 {
		return &model.MeasurementResponse{Timestamps: []int64{}, Labels: []string{}, Columns: []model.Column{}}, nil
	}

	var resp model.MeasurementResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &model.MalformedResponseError{Interface: interfaceID, Reason: fmt.Sprintf("decode measurements: %v", err)}
	}
	if err := resp.Validate(interfaceID); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("opennms request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}
