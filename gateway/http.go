package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

const maxBodyBytes = 1 << 20

// HTTPClient implements Gateway over HTTP.
type HTTPClient struct {
	baseURL     string
	requestPath string
	confirmPath string
	headers     map[string]string

	http    *http.Client
	logger  logger.Logger
	metrics metrics.Recorder
}

var _ Gateway = (*HTTPClient)(nil)

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithPaths overrides the request and confirm paths. Empty values keep the defaults.
func WithPaths(requestPath, confirmPath string) Option {
	return func(h *HTTPClient) {
		if requestPath != "" {
			h.requestPath = requestPath
		}
		if confirmPath != "" {
			h.confirmPath = confirmPath
		}
	}
}

// WithHeaders adds static headers, such as an API key, to every request.
func WithHeaders(headers map[string]string) Option {
	return func(h *HTTPClient) {
		for k, v := range headers {
			h.headers[k] = v
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(h *HTTPClient) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(h *HTTPClient) {
		if r != nil {
			h.metrics = r
		}
	}
}

// NewHTTPClient creates a gateway client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid gateway url %q", baseURL),
		}
	}
	h := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		requestPath: types.DefaultRequestPath,
		confirmPath: types.DefaultConfirmPath,
		headers:     map[string]string{},
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HTTPClient) endpoint(path, resourceID string) string {
	return h.baseURL + strings.ReplaceAll(path, ResourcePlaceholder, url.PathEscape(resourceID))
}

// RequestPayment issues GET on the request path. 2xx means the resource was served;
// 402 carries the payment options. Any other status is returned as an X402Error.
func (h *HTTPClient) RequestPayment(ctx context.Context, resourceID string) (*types.PaymentRequestResult, error) {
	status, body, err := h.do(ctx, "request_payment", http.MethodGet, h.endpoint(h.requestPath, resourceID), nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 200 && status < 300:
		return &types.PaymentRequestResult{StatusCode: status, Data: body}, nil
	case status == http.StatusPaymentRequired:
		required, err := utils.ParsePaymentRequired(body)
		if err != nil {
			return nil, err
		}
		h.logger.Debug("payment required", map[string]any{
			"resource_id": resourceID,
			"order_id":    required.OrderID,
			"options":     len(required.Accepts),
		})
		return &types.PaymentRequestResult{StatusCode: status, Required: required}, nil
	default:
		return nil, &types.X402Error{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("gateway returned http %d", status),
			Data:    string(body),
		}
	}
}

// ConfirmPayment issues POST on the confirm path with the proof in the X-PAYMENT header.
// Non-2xx answers with a JSON body are returned as results, not errors, so the caller
// can inspect the gateway's message.
func (h *HTTPClient) ConfirmPayment(ctx context.Context, resourceID, proofHeader string) (*types.ConfirmResult, error) {
	status, body, err := h.do(ctx, "confirm_payment", http.MethodPost, h.endpoint(h.confirmPath, resourceID), map[string]string{
		types.PaymentHeader: proofHeader,
	})
	if err != nil {
		return nil, err
	}

	res := &types.ConfirmResult{StatusCode: status}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, res); err != nil {
			if status >= 200 && status < 300 {
				return nil, &types.X402Error{
					Code:    types.ErrInvalidPayload,
					Message: fmt.Sprintf("failed to parse confirm response: %v", err),
				}
			}
			res.Message = string(body)
		}
	}
	res.StatusCode = status
	return res, nil
}

func (h *HTTPClient) do(ctx context.Context, op, method, endpoint string, extra map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := h.http.Do(req)
	h.metrics.ObserveLatency("gateway_"+op, time.Since(start), nil)
	if err != nil {
		h.logger.Warn("gateway request failed", map[string]any{"op": op, "url": endpoint, "error": err.Error()})
		return 0, nil, &types.X402Error{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("gateway %s: %v", op, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", op, err)
	}
	h.logger.Debug("gateway response", map[string]any{"op": op, "status": resp.StatusCode})
	return resp.StatusCode, body, nil
}
