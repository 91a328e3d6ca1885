// Package remote is the HTTP client for the VocalX processing backend:
// uploads, dubbing, privacy conversion, voice cloning, voice effects,
// text-to-speech and the catalogue endpoints.
//
// Non-2xx responses become *domain.ServiceError carrying the server's
// "detail" text unchanged. Requests that never got a response become
// *domain.NetworkError. Nothing is retried.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// DefaultBaseURL is where the backend listens by default.
const DefaultBaseURL = "http://localhost:8001"

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Processing calls can take
// minutes on CPU-only backends.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithOfflineCatalog makes catalogue calls fall back to the built-in lists
// when the backend cannot be reached.
func WithOfflineCatalog(on bool) Option {
	return func(c *Client) {
		c.offlineCatalog = on
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		base := c.http.BaseURL
		c.http = resty.NewWithClient(hc).SetBaseURL(base).SetLogger(restyLogger{c.log})
	}
}

// Client talks to one backend.
type Client struct {
	http           *resty.Client
	log            *logger.Logger
	offlineCatalog bool
}

// New creates a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, log *logger.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{log: log.Named("remote")}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(5*time.Minute).
		SetHeader("User-Agent", "VocalX/1.0").
		SetLogger(restyLogger{c.log})
	for _, opt := range opts {
		opt(c)
	}
	c.instrument()
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.http.BaseURL }

// request starts a request bound to ctx.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// do executes r and maps failures onto the domain error types.
func (c *Client) do(op, method, path string, r *resty.Request) (*resty.Response, error) {
	start := time.Now()
	resp, err := r.Execute(method, path)
	if err != nil {
		c.log.Warn("%s %s: %v", method, path, err)
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	c.log.Debug("%s %s -> %d (%s)", method, path, resp.StatusCode(), time.Since(start).Round(time.Millisecond))
	if !resp.IsSuccess() {
		return nil, serviceError(resp)
	}
	return resp, nil
}

// doJSON executes r and decodes a JSON body into out.
func (c *Client) doJSON(op, method, path string, r *resty.Request, out any) error {
	resp, err := c.do(op, method, path, r.SetHeader("Accept", "application/json"))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// serviceError extracts FastAPI's {"detail": ...}. Detail is usually a
// string; validation failures carry a list, which is kept as raw JSON.
func serviceError(resp *resty.Response) *domain.ServiceError {
	se := &domain.ServiceError{Status: resp.StatusCode()}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	raw := resp.Body()
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			se.Detail = s
			return se
		}
		var buf bytes.Buffer
		if json.Compact(&buf, body.Detail) == nil {
			se.Detail = buf.String()
			return se
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		se.Detail = text
	} else {
		se.Detail = http.StatusText(se.Status)
	}
	return se
}

// multipartFile attaches an artifact under the given form field.
func multipartFile(r *resty.Request, field string, a *domain.Artifact) *resty.Request {
	return r.SetMultipartField(field, a.SuggestedFilename(), a.MIMEType(), bytes.NewReader(a.Data()))
}

// restyLogger routes resty's internal messages into our logger.
type restyLogger struct{ log *logger.Logger }

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error(format, v...) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn(format, v...) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug(format, v...) }
