package upstream

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/Borislavv/presentation-gate/pkg/http/header"
	"github.com/Borislavv/presentation-gate/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const (
	maxConns            = 2048
	maxIdleConnDuration = 30 * time.Second
	maxResponseBodySize = 32 << 20 // 32 MiB
)

var (
	okCounter          = metrics.NewCounter(keyword.UpstreamMetricName + `{outcome="ok"}`)
	errorCounter       = metrics.NewCounter(keyword.UpstreamMetricName + `{outcome="error"}`)
	rateLimitedCounter = metrics.NewCounter(keyword.UpstreamMetricName + `{outcome="rate_limited"}`)
	cacheHitCounter    = metrics.NewCounter(keyword.UpstreamMetricName + `{outcome="cache_hit"}`)
	responseTime       = metrics.NewHistogram(keyword.UpstreamResponseTimeMetricName)
)

// hopHeaders must not be forwarded by a proxy (RFC 9110, section 7.6.1).
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var healthCheckPath = []byte("/")

// Upstream is the content the guard renders when a navigation passes.
type Upstream interface {
	// Proxy forwards the request to the origin and writes the origin response into ctx.
	Proxy(ctx *fasthttp.RequestCtx) error
	IsHealthy() bool
}

// Option tunes the underlying client.
type Option func(*fasthttp.HostClient)

// WithDial replaces the dialer, e.g. with an in-memory listener in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *fasthttp.HostClient) { c.Dial = dial }
}

// Backend proxies requests to the front-end origin.
type Backend struct {
	cfg     config.Upstream
	scheme  []byte
	host    []byte
	client  *fasthttp.HostClient
	limiter *rate.Limiter
	cache   *ResponseCache
}

// NewBackend builds a backend for cfg.Url. Rate limiting and the micro-cache are
// enabled only when configured.
func NewBackend(cfg config.Upstream, opts ...Option) (*Backend, error) {
	u, err := url.Parse(cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpstreamURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidUpstreamURL, cfg.Url)
	}

	isTLS := u.Scheme == "https"
	addr := u.Host
	if u.Port() == "" {
		if isTLS {
			addr = net.JoinHostPort(u.Hostname(), "443")
		} else {
			addr = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	client := &fasthttp.HostClient{
		Addr:                          addr,
		Name:                          "presentation-gate",
		IsTLS:                         isTLS,
		MaxConns:                      maxConns,
		MaxIdleConnDuration:           maxIdleConnDuration,
		ReadTimeout:                   cfg.Timeout,
		WriteTimeout:                  cfg.Timeout,
		MaxResponseBodySize:           maxResponseBodySize,
		NoDefaultUserAgentHeader:      true,
		DisableHeaderNamesNormalizing: true,
	}
	for _, opt := range opts {
		opt(client)
	}

	b := &Backend{
		cfg:    cfg,
		scheme: []byte(u.Scheme),
		host:   []byte(u.Host),
		client: client,
	}

	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	if cfg.Cache.Enabled {
		if b.cache, err = NewResponseCache(cfg.Cache); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Proxy forwards ctx.Request to the origin. On error nothing is written into ctx.
// Only credential-free GETs answered with a shareable 200 go through the micro-cache.
func (b *Backend) Proxy(ctx *fasthttp.RequestCtx) error {
	var key uint64
	cacheable := b.cache != nil && IsCacheableRequest(&ctx.Request)
	if cacheable {
		key = b.cache.Key(ctx)
		if entry, found := b.cache.Get(key); found {
			cacheHitCounter.Inc()
			entry.WriteTo(ctx)
			header.SetCacheStatusFastHttp(ctx, true)
			return nil
		}
	}

	if b.limiter != nil && !b.limiter.Allow() {
		rateLimitedCounter.Inc()
		return ErrRateLimited
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	b.buildRequest(ctx, req)

	from := time.Now()
	err := b.client.DoTimeout(req, resp, b.cfg.Timeout)
	responseTime.Update(float64(time.Since(from).Microseconds()) / 1000)
	if err != nil {
		errorCounter.Inc()
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	okCounter.Inc()

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}

	resp.Header.CopyTo(&ctx.Response.Header)
	ctx.SetStatusCode(resp.StatusCode())
	ctx.SetBody(resp.Body())

	if cacheable && IsCacheableResponse(resp) {
		b.cache.Set(key, NewEntry(resp))
		header.SetCacheStatusFastHttp(ctx, false)
	}

	return nil
}

// buildRequest copies the incoming request, points it at the origin and adds forwarding headers.
func (b *Backend) buildRequest(ctx *fasthttp.RequestCtx, req *fasthttp.Request) {
	ctx.Request.CopyTo(req)

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	req.Header.SetBytesV("X-Forwarded-Host", ctx.Host())
	if ctx.IsTLS() {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	if ip := ctx.RemoteIP(); ip != nil && !ip.IsUnspecified() {
		req.Header.Set("X-Forwarded-For", ip.String())
	}

	req.URI().SetSchemeBytes(b.scheme)
	req.SetHostBytes(b.host)
}

// IsHealthy reports whether the origin answers its root without a server error.
func (b *Backend) IsHealthy() bool {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	uri := req.URI()
	uri.SetSchemeBytes(b.scheme)
	uri.SetHostBytes(b.host)
	uri.SetPathBytes(healthCheckPath)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := b.client.DoTimeout(req, resp, b.cfg.Timeout); err != nil {
		return false
	}
	return resp.StatusCode() < fasthttp.StatusInternalServerError
}

// Close releases the micro-cache, if any.
func (b *Backend) Close() {
	if b.cache != nil {
		b.cache.Close()
	}
}
