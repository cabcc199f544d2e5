// Package cloudmanager is the HTTP client for the CloudManager blockchain
// service. Every call is logged and mapped onto the package's error
// taxonomy. Mutating calls are gated on a compatibility verdict.
package cloudmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chauffe/internal/compat"
	"chauffe/internal/logging"

	"go.uber.org/zap"
)

const (
	// DefaultUserAgent identifies the webapp to CloudManager.
	DefaultUserAgent = "MyChauffe-WebApp/1.0"
	// DefaultTimeout bounds each request.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxConcurrency bounds the per-blockchain detail fetches.
	DefaultMaxConcurrency = 4

	// maxErrorBody caps the body kept on a RemoteError.
	maxErrorBody = 64 * 1024
	// maxResponseBody caps a successful response. Listings grow with the
	// number of blockchains, so this is far above any real reply.
	maxResponseBody = 32 << 20
)

// Config holds the client configuration. BaseURL is required.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	UserAgent          string
	CompatibleVersions []string
	MaxConcurrency     int
	// HTTPClient overrides the transport. Its Timeout is replaced by Timeout
	// when Timeout is set.
	HTTPClient *http.Client
	// Audit receives audit events for mutating calls. Defaults to a child of
	// the client logger.
	Audit *logging.AuditLogger
}

// Client talks to one CloudManager deployment.
type Client struct {
	baseURL        *url.URL
	userAgent      string
	httpClient     *http.Client
	maxConcurrency int
	negotiator     *compat.Negotiator
	logger         *zap.Logger
	audit          *logging.AuditLogger
}

// New creates a client. The logger may be nil.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, &ValidationError{Field: "base_url", Reason: "required"}
	}
	base, err := url.Parse(raw)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, &ValidationError{Field: "base_url", Reason: fmt.Sprintf("%q is not an http(s) URL", cfg.BaseURL)}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		copied.Timeout = timeout
		hc = &copied
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	conc := cfg.MaxConcurrency
	if conc <= 0 {
		conc = DefaultMaxConcurrency
	}

	c := &Client{
		baseURL:        base,
		userAgent:      ua,
		httpClient:     hc,
		maxConcurrency: conc,
		logger:         logger,
		audit:          cfg.Audit,
	}
	if c.audit == nil {
		c.audit = logging.NewAuditLogger(logger.Named("audit"))
	}
	c.negotiator = compat.NewNegotiator(c, compat.NewSet(cfg.CompatibleVersions...),
		compat.WithLogger(logger.Named("compat")))

	logger.Debug("CloudManager client created",
		zap.String("base_url", base.String()),
		zap.Duration("timeout", timeout),
		zap.Strings("compatible_versions", cfg.CompatibleVersions))
	return c, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Negotiator exposes the compatibility negotiator bound to this client.
func (c *Client) Negotiator() *compat.Negotiator {
	return c.negotiator
}

// CheckHealth probes the service and returns a fresh compatibility verdict.
func (c *Client) CheckHealth(ctx context.Context) compat.Verdict {
	return c.negotiator.Check(ctx)
}

// ProbeVersion implements compat.Prober using the health endpoint.
func (c *Client) ProbeVersion(ctx context.Context) (string, bool, error) {
	h, err := c.Health(ctx)
	if err != nil {
		return "", false, err
	}
	if h.Version == nil {
		return "", false, nil
	}
	return *h.Version, true, nil
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if _, err := c.do(ctx, "health", http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Version calls GET /api/version.
func (c *Client) Version(ctx context.Context) (*VersionResponse, error) {
	var out VersionResponse
	if _, err := c.do(ctx, "version", http.MethodGet, "/api/version", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// gate runs the compatibility check ahead of a mutating call. Unavailable
// and abandoned checks refuse the call; an incompatible version is logged
// and allowed through.
func (c *Client) gate(ctx context.Context, op string) (compat.Verdict, error) {
	v := c.negotiator.Ensure(ctx)
	switch v.State {
	case compat.Unavailable:
		c.audit.Log(logging.AuditEvent{
			EventType: logging.AuditCompatBlock,
			Operation: op,
			Message:   v.Message,
		})
		cause := fmt.Errorf("%w: %s", ErrUnavailable, v.Message)
		if v.Err != nil {
			cause = fmt.Errorf("%w: %w", ErrUnavailable, v.Err)
		}
		return v, &RemoteError{Op: op, Mutating: true, Cause: cause}
	case compat.IncompatibleWarning:
		c.logger.Warn("Proceeding against incompatible CloudManager version",
			zap.String("op", op), zap.String("version", v.Version))
		c.audit.Log(logging.AuditEvent{
			EventType: logging.AuditCompatWarn,
			Operation: op,
			Success:   true,
			Message:   v.Message,
		})
	case compat.Compatible:
		c.audit.Log(logging.AuditEvent{
			EventType: logging.AuditCompatCheck,
			Operation: op,
			Success:   true,
			Message:   v.Message,
		})
	default:
		cause := ctx.Err()
		if cause == nil {
			cause = errors.New(v.Message)
		}
		return v, &RemoteError{Op: op, Mutating: true, Cause: cause}
	}
	return v, nil
}

// forgetVerdict drops the cached verdict after a mutating call failed in
// transit, so the next call re-checks the service first.
func (c *Client) forgetVerdict(err error) {
	var rerr *RemoteError
	if errors.As(err, &rerr) && !rerr.HasStatus() {
		c.negotiator.Reset()
	}
}

// do sends one request and decodes a 2xx JSON body into out. It returns the
// HTTP status when the service answered.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	mutating := method != http.MethodGet && method != http.MethodHead
	target := c.baseURL.String() + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("cloudmanager %s: failed to marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, &RemoteError{Op: op, Method: method, Path: path, Mutating: mutating, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	c.logger.Debug("CloudManager API call", zap.String("op", op), zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		rerr := &RemoteError{Op: op, Method: method, Path: path, Mutating: mutating, Timeout: isTimeout(err), Cause: err}
		c.logger.Error("CloudManager request failed",
			zap.String("op", op), zap.String("path", path), zap.Bool("timeout", rerr.Timeout), zap.Error(err))
		if mutating {
			c.audit.CallError(op, path, 0, time.Since(start), rerr)
		}
		return 0, rerr
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	c.logger.Info("CloudManager API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		rerr := &RemoteError{
			Op: op, Method: method, Path: path, Mutating: mutating,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}
		c.logger.Error("CloudManager API error", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("body", rerr.Body))
		if mutating {
			c.audit.CallError(op, path, resp.StatusCode, elapsed, rerr)
		}
		return resp.StatusCode, rerr
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if readErr == nil && len(respBody) > maxResponseBody {
		readErr = fmt.Errorf("body exceeds %d bytes", maxResponseBody)
	}
	if readErr != nil {
		rerr := &RemoteError{Op: op, Method: method, Path: path, Mutating: mutating, StatusCode: resp.StatusCode,
			Timeout: isTimeout(readErr), Cause: fmt.Errorf("failed to read response: %w", readErr)}
		return resp.StatusCode, rerr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			if len(respBody) > maxErrorBody {
				respBody = respBody[:maxErrorBody]
			}
			rerr := &RemoteError{Op: op, Method: method, Path: path, Mutating: mutating, StatusCode: resp.StatusCode,
				Body: string(respBody), Cause: fmt.Errorf("invalid response body: %w", err)}
			c.logger.Error("CloudManager response did not decode", zap.String("op", op), zap.Error(err))
			return resp.StatusCode, rerr
		}
	}

	if mutating {
		c.audit.CallComplete(op, path, resp.StatusCode, elapsed)
	}
	return resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
