package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxResponseBytes caps how much of a partner response is read
const maxResponseBytes = 1 << 20

// httpClient performs JSON requests against one partner platform
type httpClient struct {
	platform   billing.Platform
	baseURL    string
	httpClient *http.Client
}

func newHTTPClient(platform billing.Platform, cfg Config) *httpClient {
	return &httpClient{
		platform: platform,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.timeout(),
		},
	}
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// decode unmarshals the body into v, reporting malformed payloads as an upstream failure
func (r *response) decode(platform billing.Platform, v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return billing.Unavailable(platform, fmt.Errorf("malformed response (HTTP %d): %w", r.status, err))
	}
	return nil
}

// do sends a request. Only transport failures are errors; callers map status codes.
func (c *httpClient) do(ctx context.Context, method, path, token string, payload any) (*response, error) {
	ctx, span := telemetry.StartSpan(ctx, fmt.Sprintf("gateway.%s %s", c.platform, method),
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrPlatform, string(c.platform)),
		telemetry.WithAttribute("url.path", path),
	)
	defer span.End()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", c.platform, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.platform, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.L(ctx).Warn("Upstream request failed",
			zap.String("platform", string(c.platform)),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, billing.Unavailable(c.platform, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, billing.Unavailable(c.platform, fmt.Errorf("failed to read response: %w", err))
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrHTTPStatus, resp.StatusCode)
	logger.L(ctx).Debug("Upstream request",
		zap.String("platform", string(c.platform)),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &response{status: resp.StatusCode, body: raw}, nil
}

// failure maps a non-2xx response that has no dedicated meaning for the call
func (c *httpClient) failure(r *response) error {
	if r.status == http.StatusUnauthorized {
		return billing.AuthExpired(c.platform)
	}
	return billing.Unavailable(c.platform, fmt.Errorf("HTTP %d: %s", r.status, upstreamMessage(r.body)))
}

// upstreamMessage extracts a "message" field when present, else a trimmed body
func upstreamMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
