package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dataview-hq/dataview/internal/infrastructure/config"
	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/infrastructure/monitoring"
	"github.com/dataview-hq/dataview/internal/infrastructure/resilience"
	"github.com/dataview-hq/dataview/internal/shared/types"
)

// Sentinel errors for not-found outcomes callers dispatch on.
var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Call   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend %s: status %d", e.Call, e.Status)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Call, e.Status, e.Detail)
}

// Client talks to the analysis backend over HTTP. All calls share one
// rate limiter and circuit breaker. Retries are disabled: a failed call
// is reported to the user, who decides whether to try again.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	metrics *monitoring.Metrics
	log     *logging.Logger

	timeout       time.Duration
	uploadTimeout time.Duration
	historyLimit  int
}

// New creates a backend client from configuration. metrics may be nil
// in tests.
func New(cfg config.BackendConfig, metrics *monitoring.Metrics, log *logging.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetRetryCount(0).
		SetHeader("User-Agent", "dataview-gateway/1.0")

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
		burst = int(cfg.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
	}

	breaker := resilience.New("analysis-backend", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	})

	return &Client{
		http:          httpClient,
		limiter:       rate.NewLimiter(limit, burst),
		breaker:       breaker,
		metrics:       metrics,
		log:           log,
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		historyLimit:  cfg.HistoryLimit,
	}
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// History fetches the full lineage snapshot for a session.
func (c *Client) History(ctx context.Context, sessionID string) (*HistoryResponse, error) {
	var out HistoryResponse
	resp, err := c.do(ctx, "history", c.timeout, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParam("session_id", sessionID).
			SetQueryParam("limit", strconv.Itoa(c.historyLimit)).
			SetResult(&out).
			SetError(&apiError{}).
			Get("/v1/history")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.statusError("history", resp)
	}
	return &out, nil
}

// NodeDetail fetches the operation parameters for one node. A missing
// node is ErrNodeNotFound, which callers treat as terminal.
func (c *Client) NodeDetail(ctx context.Context, nodeID string) (*types.NodeDetail, error) {
	var out types.NodeDetail
	resp, err := c.do(ctx, "node_detail", c.timeout, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetResult(&out).
			SetError(&apiError{}).
			Get("/v1/nodes/" + nodeID)
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if resp.IsError() {
		return nil, c.statusError("node_detail", resp)
	}
	return &out, nil
}

// Checkout moves the session head to an existing node.
func (c *Client) Checkout(ctx context.Context, sessionID, nodeID string) (*CheckoutResponse, error) {
	var out CheckoutResponse
	resp, err := c.do(ctx, "checkout", c.timeout, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(CheckoutRequest{SessionID: sessionID, NodeID: nodeID}).
			SetResult(&out).
			SetError(&apiError{}).
			Post("/v1/checkout")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.statusError("checkout", resp)
	}
	return &out, nil
}

// Ask sends a natural-language question about an artifact and returns
// the planner intent plus its raw result.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	var out AskResponse
	resp, err := c.do(ctx, "ask", c.timeout, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			SetError(&apiError{}).
			Post("/v1/ask")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.statusError("ask", resp)
	}
	return &out, nil
}

// Upload ingests a dataset file into a session. The reader is streamed
// as multipart form data; uploads get a longer deadline than other
// calls.
func (c *Client) Upload(ctx context.Context, sessionID, filename string, file io.Reader) (*UploadResponse, error) {
	var out UploadResponse
	resp, err := c.do(ctx, "upload", c.uploadTimeout, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetFileReader("file", filename, file).
			SetFormData(map[string]string{"session_id": sessionID}).
			SetResult(&out).
			SetError(&apiError{}).
			Post("/v1/upload")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.statusError("upload", resp)
	}
	return &out, nil
}

// FetchArtifact streams raw artifact bytes. The caller must close the
// returned reader.
func (c *Client) FetchArtifact(ctx context.Context, artifactID string) (io.ReadCloser, string, error) {
	resp, err := c.do(ctx, "artifact", c.timeout, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get("/v1/artifacts/" + artifactID)
	})
	if err != nil {
		return nil, "", err
	}

	body := resp.RawBody()
	if resp.StatusCode() == http.StatusNotFound {
		body.Close()
		return nil, "", fmt.Errorf("%w: %s", ErrArtifactNotFound, artifactID)
	}
	if resp.IsError() {
		body.Close()
		return nil, "", &StatusError{Call: "artifact", Status: resp.StatusCode()}
	}
	return body, resp.Header().Get("Content-Type"), nil
}

// do runs one backend call through the rate limiter and breaker, with
// a per-call deadline and metrics. Server-side failures (5xx) count
// against the breaker; client errors (4xx) do not.
func (c *Client) do(ctx context.Context, call string, timeout time.Duration, fn func(context.Context) (*resty.Response, error)) (*resty.Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("backend %s: %w", call, err)
	}

	var timer *monitoring.Timer
	if c.metrics != nil {
		timer = monitoring.NewTimer(c.metrics, call)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, fmt.Errorf("backend %s: status %d", call, resp.StatusCode())
		}
		return resp, nil
	})

	resp, _ := result.(*resty.Response)
	if timer != nil {
		timer.Stop(callStatus(resp, err))
	}

	if err != nil {
		if resp != nil {
			return nil, c.statusError(call, resp)
		}
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, fmt.Errorf("backend %s: %w", call, err)
		}
		if c.log != nil {
			c.log.Warn("backend call failed", zap.String("call", call), zap.Error(err))
		}
		return nil, err
	}
	return resp, nil
}

// callStatus is the metrics label for one call outcome.
func callStatus(resp *resty.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode())
	}
	if err != nil && (errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests)) {
		return "rejected"
	}
	return "error"
}

func (c *Client) statusError(call string, resp *resty.Response) error {
	detail := ""
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr != nil {
		detail = apiErr.Detail
	}
	return &StatusError{Call: call, Status: resp.StatusCode(), Detail: detail}
}
