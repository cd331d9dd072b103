package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"promethium-examples/runner/internal/logging"
	"promethium-examples/runner/pkg/models"
)

const (
	workflowsPath = "/v0/workflows"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 64 << 20

	// DefaultPollInterval is how often Wait polls unless WithPollInterval is used.
	DefaultPollInterval = 10 * time.Second
)

var errNotFinished = errors.New("workflow not finished")

// HTTPWorkflowClient is an HTTP implementation of the WorkflowClient interface.
type HTTPWorkflowClient struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	waitTimeout  time.Duration
	logger       Logger
	metrics      *clientMetrics
}

// ClientOption configures an HTTPWorkflowClient.
type ClientOption func(*HTTPWorkflowClient)

// WithHTTPClient sets the underlying HTTP client, typically one carrying
// authentication.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPWorkflowClient) { h.httpClient = c }
}

// WithPollInterval sets how often Wait checks the workflow status.
func WithPollInterval(d time.Duration) ClientOption {
	return func(h *HTTPWorkflowClient) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// WithWaitTimeout bounds how long Wait blocks. Zero means no bound beyond
// the caller's context.
func WithWaitTimeout(d time.Duration) ClientOption {
	return func(h *HTTPWorkflowClient) { h.waitTimeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l Logger) ClientOption {
	return func(h *HTTPWorkflowClient) { h.logger = l }
}

// NewHTTPWorkflowClient creates a new HTTPWorkflowClient.
func NewHTTPWorkflowClient(baseURL string, opts ...ClientOption) *HTTPWorkflowClient {
	c := &HTTPWorkflowClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   http.DefaultClient,
		pollInterval: DefaultPollInterval,
		logger:       logging.NewNop(),
		metrics:      newClientMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates a workflow.
func (c *HTTPWorkflowClient) Submit(ctx context.Context, req *models.WorkflowRequest) (*models.Workflow, error) {
	if req == nil {
		return nil, errors.New("workflow request is nil")
	}

	var wf models.Workflow
	err := c.do(ctx, http.MethodPost, workflowsPath, req, &wf)
	c.metrics.submitted(ctx, req.Kind, err)
	if err != nil {
		return nil, fmt.Errorf("failed to submit workflow %s: %w", req.Name, err)
	}
	if wf.ID == "" {
		return nil, fmt.Errorf("failed to submit workflow %s: response has no id", req.Name)
	}
	if wf.Name == "" {
		wf.Name = req.Name
	}
	wf.Status = models.ParseWorkflowStatus(string(wf.Status))
	return &wf, nil
}

// Get returns the current state of a workflow.
func (c *HTTPWorkflowClient) Get(ctx context.Context, id string) (*models.Workflow, error) {
	var wf models.Workflow
	if err := c.do(ctx, http.MethodGet, workflowPath(id), nil, &wf); err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	wf.Status = models.ParseWorkflowStatus(string(wf.Status))
	return &wf, nil
}

// Results returns the artifacts of a finished workflow.
func (c *HTTPWorkflowClient) Results(ctx context.Context, id string) (*models.WorkflowResult, error) {
	var res models.WorkflowResult
	if err := c.do(ctx, http.MethodGet, workflowPath(id)+"/results", nil, &res); err != nil {
		return nil, fmt.Errorf("failed to get results for workflow %s: %w", id, err)
	}
	if res.WorkflowID == "" {
		res.WorkflowID = id
	}
	return &res, nil
}

// Wait polls the workflow until it reaches a terminal state. A FAILED or
// CANCELLED workflow is returned together with a WorkflowError wrapping
// ErrWorkflowFailed. Polling stops on the first request error.
func (c *HTTPWorkflowClient) Wait(ctx context.Context, id string) (*models.Workflow, error) {
	start := time.Now()
	waitCtx := ctx
	if c.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.waitTimeout)
		defer cancel()
	}

	var last *models.Workflow
	poll := func() error {
		wf, err := c.Get(waitCtx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = wf
		if !wf.Status.IsTerminal() {
			c.logger.Debug("workflow not finished", "workflow_id", id, "status", wf.Status)
			return errNotFinished
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), waitCtx)
	if err := backoff.Retry(poll, b); err != nil {
		werr := &WorkflowError{ID: id, Err: err}
		if last != nil {
			werr.Status = last.Status
		}
		if ctx.Err() == nil && waitCtx.Err() != nil {
			werr.Err = fmt.Errorf("%w after %s", ErrWaitTimeout, c.waitTimeout)
		}
		return last, werr
	}

	c.metrics.finished(ctx, last.Status, time.Since(start))
	if !last.Status.Succeeded() {
		return last, &WorkflowError{ID: id, Status: last.Status, Err: ErrWorkflowFailed, Reason: last.Error}
	}
	return last, nil
}

func workflowPath(id string) string {
	return workflowsPath + "/" + url.PathEscape(id)
}

func (c *HTTPWorkflowClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

type clientMetrics struct {
	submissions  metric.Int64Counter
	terminal     metric.Int64Counter
	waitDuration metric.Float64Histogram
}

func newClientMetrics() *clientMetrics {
	meter := otel.Meter("promethium-examples/runner/services")
	m := &clientMetrics{}

	var err error
	if m.submissions, err = meter.Int64Counter("workflow.submissions",
		metric.WithDescription("Workflow submissions by kind and outcome")); err != nil {
		m.submissions = noop.Int64Counter{}
	}
	if m.terminal, err = meter.Int64Counter("workflow.terminal",
		metric.WithDescription("Workflows observed in a terminal state")); err != nil {
		m.terminal = noop.Int64Counter{}
	}
	if m.waitDuration, err = meter.Float64Histogram("workflow.wait.duration",
		metric.WithDescription("Time spent waiting for workflows to finish"),
		metric.WithUnit("s")); err != nil {
		m.waitDuration = noop.Float64Histogram{}
	}
	return m
}

func (m *clientMetrics) submitted(ctx context.Context, kind models.WorkflowKind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	))
}

func (m *clientMetrics) finished(ctx context.Context, status models.WorkflowStatus, waited time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.terminal.Add(ctx, 1, attrs)
	m.waitDuration.Record(ctx, waited.Seconds(), attrs)
}
