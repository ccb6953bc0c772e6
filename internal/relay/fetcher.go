package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"downloadrelay/config"
	"downloadrelay/observability"
)

// Fetcher retrieves an upstream resource as a stream.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Upstream, error)
}

// Upstream is a successful upstream reply whose body has not been read.
type Upstream struct {
	// Body is decoded according to Content-Encoding. Callers must close it.
	Body io.ReadCloser
	// ContentType is the upstream Content-Type header, possibly empty.
	ContentType string
	// ContentLength is the length of Body, or -1 when unknown.
	ContentLength int64
	StatusCode    int
	// FinalURL is the URL after following redirects.
	FinalURL string
}

// Client fetches upstream resources with browser-like request headers.
//
// The fetch timeout covers connecting, following redirects and receiving
// response headers. Reading the body is bounded only by the caller's context
// so large files can stream for as long as the client keeps reading.
type Client struct {
	httpClient   *http.Client
	headers      map[string]string
	fetchTimeout time.Duration
	maxRedirects int
	logger       observability.Logger
	metrics      observability.Metrics
}

// NewClient creates an upstream Client from the relay configuration.
func NewClient(cfg config.RelayConfig, logger observability.Logger, metrics observability.Metrics) *Client {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = config.DefaultRelayConfig().FetchTimeout
	}

	headers := cfg.BrowserHeaders
	if headers == nil {
		headers = config.DefaultBrowserHeaders()
	}

	c := &Client{
		headers:      headers,
		fetchTimeout: timeout,
		maxRedirects: cfg.MaxRedirects,
		logger:       logger,
		metrics:      metrics,
	}
	c.httpClient = &http.Client{
		Transport:     newTransport(timeout),
		CheckRedirect: c.checkRedirect,
	}

	return c
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	var transport *http.Transport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = base.Clone()
	} else {
		transport = &http.Transport{Proxy: http.ProxyFromEnvironment}
	}

	transport.DialContext = dialer.DialContext
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 20
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	// Accept-Encoding is set explicitly, so decoding is ours.
	transport.DisableCompression = true

	return transport
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > c.maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", ErrTooManyRedirects, c.maxRedirects)
	}
	c.logger.Debug(req.Context(), "Following upstream redirect", observability.Fields{
		"location": req.URL.String(),
		"hop":      len(via),
	})
	return nil
}

// Fetch issues a GET for rawURL. Any status other than 200 is returned as a
// *StatusError after the body is drained and closed.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Upstream, error) {
	start := time.Now()

	upstream, err := c.fetch(ctx, rawURL)

	c.metrics.RecordDuration("fetch", time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError("fetch", string(Classify(err).Kind))
		return nil, err
	}
	c.metrics.RecordSuccess("fetch")

	return upstream, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*Upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid download url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", target.Scheme)
	}

	// The fetch budget covers connecting and receiving headers. After that the
	// same budget bounds every body read, so a stalled upstream is abandoned
	// while a slow consumer is not.
	fetchCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.fetchTimeout, func() { cancel(ErrFetchTimeout) })

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		timer.Stop()
		cancel(nil)
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	stopped := timer.Stop()
	if err != nil {
		timedOut := errors.Is(context.Cause(fetchCtx), ErrFetchTimeout)
		cancel(nil)
		if timedOut {
			return nil, fmt.Errorf("%w after %s: %w", ErrFetchTimeout, c.fetchTimeout, err)
		}
		return nil, err
	}
	if !stopped && errors.Is(context.Cause(fetchCtx), ErrFetchTimeout) {
		_ = resp.Body.Close()
		cancel(nil)
		return nil, fmt.Errorf("%w after %s", ErrFetchTimeout, c.fetchTimeout)
	}

	if resp.StatusCode != http.StatusOK {
		timer.Reset(c.fetchTimeout)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		timer.Stop()
		_ = resp.Body.Close()
		cancel(nil)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String()}
	}

	timer.Reset(c.fetchTimeout)
	body, decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	timer.Stop()
	if err != nil {
		timedOut := errors.Is(context.Cause(fetchCtx), ErrFetchTimeout)
		_ = resp.Body.Close()
		cancel(nil)
		if timedOut {
			return nil, fmt.Errorf("%w after %s: %w", ErrFetchTimeout, c.fetchTimeout, err)
		}
		return nil, err
	}

	length := resp.ContentLength
	if decoded {
		length = -1
	}

	idle := &idleBody{ReadCloser: body, ctx: fetchCtx, timer: timer, timeout: c.fetchTimeout}

	return &Upstream{
		Body:          &releasingBody{ReadCloser: idle, release: func() { cancel(nil) }},
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: length,
		StatusCode:    resp.StatusCode,
		FinalURL:      resp.Request.URL.String(),
	}, nil
}

// idleBody arms the fetch timer for the duration of each Read. A timer that
// fires cancels the request context, which unblocks the pending Read.
type idleBody struct {
	io.ReadCloser
	ctx     context.Context
	timer   *time.Timer
	timeout time.Duration
}

func (b *idleBody) Read(p []byte) (int, error) {
	b.timer.Reset(b.timeout)
	n, err := b.ReadCloser.Read(p)
	b.timer.Stop()
	if err != nil && !errors.Is(err, io.EOF) && errors.Is(context.Cause(b.ctx), ErrFetchTimeout) {
		err = fmt.Errorf("%w: upstream body stalled for %s: %w", ErrFetchTimeout, b.timeout, err)
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	return b.ReadCloser.Close()
}

// releasingBody cancels the request context once the body is closed.
type releasingBody struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
