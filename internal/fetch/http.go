package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/arqma/arqbot/internal/metrics"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) arqbot"
	maxBodyBytes     = 4 << 20
)

// TextFetcher returns a page body unparsed.
type TextFetcher interface {
	FetchText(ctx context.Context, source, url string) (string, error)
}

// Fetcher performs a single GET per call and reports failures as
// *TransportError, *StatusError or *ParseError.
type Fetcher interface {
	TextFetcher
	FetchJSON(ctx context.Context, source, url string, v interface{}) error
}

// HTTP is the default Fetcher backed by net/http.
type HTTP struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
}

type Option func(*HTTP)

// WithClient replaces the underlying HTTP client (tests use httptest clients).
func WithClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// WithTimeout sets the per-request timeout on a copy of the client, so a
// client passed to WithClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		if d > 0 {
			c := *h.client
			c.Timeout = d
			h.client = &c
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(h *HTTP) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

func NewHTTP(logger *slog.Logger, opts ...Option) *HTTP {
	h := &HTTP{
		client:    &http.Client{Timeout: defaultTimeout},
		logger:    logger,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// FetchText returns the response body as a string.
func (h *HTTP) FetchText(ctx context.Context, source, url string) (string, error) {
	body, err := h.get(ctx, source, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchJSON decodes the response body into v. Numbers are kept as
// json.Number when v holds interface values.
func (h *HTTP) FetchJSON(ctx context.Context, source, url string, v interface{}) error {
	body, err := h.get(ctx, source, url)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		perr := &ParseError{Source: source, Err: fmt.Errorf("decode json: %w", err)}
		h.logger.Error("upstream fetch failed", "source", source, "error", perr)
		metrics.UpstreamRequestsTotal.WithLabelValues(source, "parse_error").Inc()
		return perr
	}
	return nil
}

func (h *HTTP) get(ctx context.Context, source, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, h.fail(source, "transport_error", &TransportError{Source: source, URL: url, Err: err})
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, h.fail(source, "transport_error", &TransportError{Source: source, URL: url, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, h.fail(source, strconv.Itoa(resp.StatusCode),
			&StatusError{Source: source, URL: url, StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, h.fail(source, "transport_error", &TransportError{Source: source, URL: url, Err: fmt.Errorf("read body: %w", err)})
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(source, "ok").Inc()
	return body, nil
}

func (h *HTTP) fail(source, status string, err error) error {
	h.logger.Error("upstream fetch failed", "source", source, "error", err)
	metrics.UpstreamRequestsTotal.WithLabelValues(source, status).Inc()
	return err
}
