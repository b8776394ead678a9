package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/internal/logging"
	"github.com/MrEthical07/goAuthClient/middleware"
	"github.com/MrEthical07/goAuthClient/tokens"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultRetryBase = 100 * time.Millisecond
	maxResponseBytes = 1 << 20
	tracerName       = "github.com/MrEthical07/goAuthClient/backend"
)

// Client talks to one auth API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	maxRetries int
	retryBase  time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	base      http.RoundTripper
	logger    *slog.Logger
	retryBase time.Duration
	tracers   trace.TracerProvider
}

// WithBaseTransport sets the transport beneath the credential middleware.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.base = rt }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithRetryBase sets the first backoff interval for retried requests.
func WithRetryBase(d time.Duration) Option {
	return func(o *clientOptions) { o.retryBase = d }
}

// WithTracerProvider sets where request spans are recorded. Default is the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) { o.tracers = tp }
}

// New returns a client for cfg.BaseURL whose requests are authorized from tm.
func New(cfg goAuthClient.BackendConfig, tm *tokens.Manager, opts ...Option) (*Client, error) {
	if tm == nil {
		return nil, errors.New("backend: token manager required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("backend: BaseURL must be an absolute URL")
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New("backend: MaxRetries must be >= 0")
	}

	o := clientOptions{retryBase: defaultRetryBase}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrDiscard(o.logger)
	if o.tracers == nil {
		o.tracers = otel.GetTracerProvider()
	}

	c := &Client{
		baseURL:    u,
		maxRetries: cfg.MaxRetries,
		retryBase:  o.retryBase,
		logger:     logger,
		tracer:     o.tracers.Tracer(tracerName),
	}
	c.http = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &middleware.Transport{
			Base:         o.base,
			Tokens:       tm,
			Renew:        c.Refresh,
			DeviceHeader: cfg.DeviceHeader,
			Logger:       logger,
		},
	}
	return c, nil
}

// HTTPClient returns an http.Client that authorizes requests with the session
// credentials. Applications can use it for their own protected APIs.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.baseURL.String(), "/") + path
}

// do performs one API call. GETs are retried on transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if method != http.MethodGet || c.maxRetries == 0 {
		return c.once(ctx, method, path, in, out)
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.once(ctx, method, path, in, out)
		if retryable(ctx, err) {
			c.logger.DebugContext(ctx, "goAuthClient: retrying request", "path", path, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code() == codeTransport
	}
	return false
}

func (c *Client) once(ctx context.Context, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "goauth.backend "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return oops.Code(codeEncode).With("path", path).Wrap(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return oops.Code(codeEncode).With("path", path).Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Code(codeTransport).With("method", method).With("path", path).Wrap(err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return oops.Code(codeTransport).With("method", method).With("path", path).Wrap(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return oops.Code(codeDecode).With("path", path).Wrap(err)
	}
	return nil
}
