// Package traffic simulates people browsing the marketplace and submitting
// add-ons, recording every request as a load test sample.
package traffic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/FairForge/marketplace/internal/loadtest"
)

// Client is a cookie-keeping HTTP session for one simulated user. Every
// request it makes is reported to the recorder.
type Client struct {
	base       *url.URL
	http       *http.Client
	noRedirect *http.Client
	recorder   loadtest.Recorder
	userID     int
}

// NewClient creates a session against host, e.g. "https://addons.example".
func NewClient(host string, recorder loadtest.Recorder, userID int) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse host %q: %w", host, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("host %q must be an absolute URL", host)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if recorder == nil {
		recorder = loadtest.RecorderFunc(func(loadtest.Sample) {})
	}

	return &Client{
		base:     base,
		recorder: recorder,
		userID:   userID,
		http: &http.Client{
			Jar:     jar,
			Timeout: 60 * time.Second,
		},
		noRedirect: &http.Client{
			Jar:     jar,
			Timeout: 60 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Resolve turns a site path or absolute URL into an absolute URL.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", ref, err)
	}
	return c.base.ResolveReference(u).String(), nil
}

// Cookie returns the value of a cookie held for the site.
func (c *Client) Cookie(name string) string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

type requestOptions struct {
	name       string
	noRedirect bool
	catch      bool
	header     http.Header
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// Name groups the sample under name instead of the request path.
func Name(name string) RequestOption {
	return func(o *requestOptions) { o.name = name }
}

// NoRedirects returns 3xx responses instead of following them.
func NoRedirects() RequestOption {
	return func(o *requestOptions) { o.noRedirect = true }
}

// Catch leaves the outcome to the caller, who must call Success, Failure
// or Done on the response.
func Catch() RequestOption {
	return func(o *requestOptions) { o.catch = true }
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Set(key, value)
	}
}

// Response is a fully read response together with its pending sample.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
	Duration   time.Duration

	once   sync.Once
	record func(error)
}

// Success records the response as successful.
func (r *Response) Success() { r.resolve(nil) }

// Failure records the response as failed with err.
func (r *Response) Failure(err error) { r.resolve(err) }

// Failuref records the response as failed with a formatted message.
func (r *Response) Failuref(format string, args ...any) {
	r.resolve(fmt.Errorf(format, args...))
}

// Done records success unless an outcome was already recorded.
func (r *Response) Done() { r.resolve(nil) }

func (r *Response) resolve(err error) {
	r.once.Do(func() {
		if r.record != nil {
			r.record(err)
		}
	})
}

// Location returns the Location header.
func (r *Response) Location() string { return r.Header.Get("Location") }

// StatusError reports an HTTP status the caller did not expect.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// Get fetches ref. Errors returned by request methods have already been
// recorded unless the context was cancelled.
func (c *Client) Get(ctx context.Context, ref string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, ref, nil, "", opts)
}

// PostForm submits url-encoded values to ref.
func (c *Client) PostForm(ctx context.Context, ref string, values url.Values, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, ref, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", opts)
}

// FileField is one file part of a multipart request.
type FileField struct {
	Field    string
	Filename string
	Content  io.Reader
}

// PostMultipart submits fields and a file to ref.
func (c *Client) PostMultipart(ctx context.Context, ref string, fields url.Values, file FileField, opts ...RequestOption) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return nil, fmt.Errorf("write field %s: %w", k, err)
			}
		}
	}
	part, err := w.CreateFormFile(file.Field, file.Filename)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, ref, &buf, w.FormDataContentType(), opts)
}

func (c *Client) do(ctx context.Context, method, ref string, body io.Reader, contentType string, opts []RequestOption) (*Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	target, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}
	name := o.name
	if name == "" {
		name = ref
		if u, err := url.Parse(ref); err == nil && u.Path != "" && u.IsAbs() {
			name = u.RequestURI()
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if referer := c.base.String(); referer != "" {
		req.Header.Set("Referer", referer+"/")
	}
	for k, vs := range o.header {
		req.Header[k] = vs
	}

	hc := c.http
	if o.noRedirect {
		hc = c.noRedirect
	}

	start := time.Now()
	sample := loadtest.Sample{Type: method, Name: name, StartTime: start, UserID: c.userID}

	httpResp, err := hc.Do(req)
	if err != nil {
		sample.Duration = time.Since(start)
		sample.Err = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, name, err)
		}
		c.recorder.Record(sample)
		return nil, loadtest.Reported(fmt.Errorf("%s %s: %w", method, name, err))
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	sample.Duration = time.Since(start)
	sample.StatusCode = httpResp.StatusCode
	sample.Bytes = int64(len(data))
	if err != nil {
		sample.Err = fmt.Errorf("reading response body: %w", err)
		c.recorder.Record(sample)
		return nil, loadtest.Reported(sample.Err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		URL:        httpResp.Request.URL,
		Duration:   sample.Duration,
	}
	resp.record = func(err error) {
		s := sample
		s.Err = err
		c.recorder.Record(s)
	}

	if !o.catch {
		if resp.StatusCode >= 400 {
			resp.Failure(&StatusError{StatusCode: resp.StatusCode})
		} else {
			resp.Success()
		}
	}
	return resp, nil
}
