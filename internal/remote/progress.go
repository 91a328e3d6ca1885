package remote

import (
	"context"
	"io"
	"net/http"
)

// ProgressFunc receives the number of request body bytes sent so far and
// the body's total length.
type ProgressFunc func(sent, total int64)

type progressKey struct{}

// WithUploadProgress returns a context whose requests report body
// progress to fn as the transport writes them.
func WithUploadProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// UploadProgress returns the callback stored in ctx, or nil.
func UploadProgress(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	return fn
}

// progressTransport counts request body bytes as they are written to the
// connection. resty buffers multipart bodies before sending, so this is
// the first point where bytes actually leave.
type progressTransport struct {
	base http.RoundTripper
}

func (t progressTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	fn := UploadProgress(req.Context())
	if fn == nil || req.Body == nil || req.ContentLength <= 0 {
		return t.base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.Body = &countingBody{ReadCloser: req.Body, total: req.ContentLength, fn: fn}
	return t.base.RoundTrip(out)
}

type countingBody struct {
	io.ReadCloser
	sent  int64
	total int64
	fn    ProgressFunc
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.sent += int64(n)
		b.fn(b.sent, b.total)
	}
	return n, err
}

// instrument wraps the transport of c's HTTP client once.
func (c *Client) instrument() {
	hc := c.http.GetClient()
	if _, ok := hc.Transport.(progressTransport); ok {
		return
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = progressTransport{base: base}
}
