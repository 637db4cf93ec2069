package upstream

import (
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type origin struct {
	ln   *fasthttputil.InmemoryListener
	hits atomic.Int64
}

func startOrigin(t *testing.T, h fasthttp.RequestHandler) *origin {
	t.Helper()

	o := &origin{ln: fasthttputil.NewInmemoryListener()}
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		o.hits.Add(1)
		h(ctx)
	}}
	go func() { _ = srv.Serve(o.ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return o
}

func (o *origin) dial(string) (net.Conn, error) {
	return o.ln.Dial()
}

func newBackend(t *testing.T, o *origin, mutate func(cfg *config.Upstream)) *Backend {
	t.Helper()

	cfg := config.Upstream{Url: "http://origin.local:3000", Timeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := NewBackend(cfg, WithDial(o.dial))
	require.NoError(t, err)
	t.Cleanup(b.Close)

	return b
}

func newCtx(uri string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.SetRequestURI(uri)
	req.Header.SetHost("gate.local")
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func TestNewBackend_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:3000", "ftp://origin", "http://", "://bad"} {
		_, err := NewBackend(config.Upstream{Url: u, Timeout: time.Second})
		assert.ErrorIs(t, err, ErrInvalidUpstreamURL, "url %q", u)
	}
}

func TestProxy_ForwardsRequestAndResponse(t *testing.T) {
	o := startOrigin(t, func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set("X-Origin-Path", string(ctx.Path()))
		ctx.Response.Header.Set("X-Origin-Query", string(ctx.QueryArgs().QueryString()))
		ctx.Response.Header.Set("X-Origin-Forwarded-Host", string(ctx.Request.Header.Peek("X-Forwarded-Host")))
		ctx.Response.Header.Set("X-Origin-Forwarded-Proto", string(ctx.Request.Header.Peek("X-Forwarded-Proto")))
		ctx.Response.Header.Set("X-Origin-Host", string(ctx.Host()))
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("slide one")
	})
	b := newBackend(t, o, nil)

	ctx := newCtx("/presentation/slide1?step=2")
	require.NoError(t, b.Proxy(ctx))

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "slide one", string(ctx.Response.Body()))
	assert.Equal(t, "/presentation/slide1", string(ctx.Response.Header.Peek("X-Origin-Path")))
	assert.Equal(t, "step=2", string(ctx.Response.Header.Peek("X-Origin-Query")))
	assert.Equal(t, "gate.local", string(ctx.Response.Header.Peek("X-Origin-Forwarded-Host")))
	assert.Equal(t, "http", string(ctx.Response.Header.Peek("X-Origin-Forwarded-Proto")))
	assert.Equal(t, "origin.local:3000", string(ctx.Response.Header.Peek("X-Origin-Host")))
}

func TestProxy_KeepsOriginStatus(t *testing.T) {
	o := startOrigin(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("origin 404")
	})
	b := newBackend(t, o, nil)

	ctx := newCtx("/presentation/missing")
	require.NoError(t, b.Proxy(ctx))

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Equal(t, "origin 404", string(ctx.Response.Body()))
}

func TestProxy_Unavailable(t *testing.T) {
	failing := func(string) (net.Conn, error) { return nil, errors.New("connection refused") }

	b, err := NewBackend(config.Upstream{Url: "http://origin.local:3000", Timeout: time.Second}, WithDial(failing))
	require.NoError(t, err)
	defer b.Close()

	ctx := newCtx("/presentation")
	err = b.Proxy(ctx)

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.False(t, b.IsHealthy())
}

func TestProxy_RateLimited(t *testing.T) {
	o := startOrigin(t, func(ctx *fasthttp.RequestCtx) { ctx.SetBodyString("ok") })
	b := newBackend(t, o, func(cfg *config.Upstream) {
		cfg.Rate = 0.001
		cfg.Burst = 1
	})

	require.NoError(t, b.Proxy(newCtx("/presentation")))
	assert.ErrorIs(t, b.Proxy(newCtx("/presentation")), ErrRateLimited)
	assert.Equal(t, int64(1), o.hits.Load())
}

func TestProxy_MicroCache(t *testing.T) {
	o := startOrigin(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("text/html")
		ctx.SetBodyString("cached slide")
	})
	b := newBackend(t, o, func(cfg *config.Upstream) {
		cfg.Cache = config.UpstreamCache{Enabled: true, TTL: time.Minute, MaxCost: 1 << 20}
	})

	first := newCtx("/presentation/slide1")
	require.NoError(t, b.Proxy(first))
	assert.Equal(t, "MISS", string(first.Response.Header.Peek("X-Gate-Cache")))
	b.cache.Wait()

	second := newCtx("/presentation/slide1")
	require.NoError(t, b.Proxy(second))

	assert.Equal(t, "HIT", string(second.Response.Header.Peek("X-Gate-Cache")))
	assert.Equal(t, "cached slide", string(second.Response.Body()))
	assert.Equal(t, "text/html", string(second.Response.Header.ContentType()))
	assert.Equal(t, int64(1), o.hits.Load())
}

func enableCache(cfg *config.Upstream) {
	cfg.Cache = config.UpstreamCache{Enabled: true, TTL: time.Minute, MaxCost: 1 << 20}
}

func TestProxy_MicroCacheKeepsSessionsApart(t *testing.T) {
	o := startOrigin(t, func(ctx *fasthttp.RequestCtx) {
		session := string(ctx.Request.Header.Cookie("session"))
		ctx.Response.Header.Set("Cache-Control", "private, no-store")
		ctx.Response.Header.Set("Set-Cookie", "session="+session)
		ctx.SetBodyString("hello " + session)
	})
	b := newBackend(t, o, enableCache)

	for _, session := range []string{"alice", "bob"} {
		ctx := newCtx("/presentation")
		ctx.Request.Header.SetCookie("session", session)

		require.NoError(t, b.Proxy(ctx))
		b.cache.Wait()

		assert.Equal(t, "hello "+session, string(ctx.Response.Body()))
		assert.Contains(t, string(ctx.Response.Header.PeekCookie("session")), "session="+session)
		assert.Empty(t, ctx.Response.Header.Peek("X-Gate-Cache"))
	}
	assert.Equal(t, int64(2), o.hits.Load())
}

func TestProxy_MicroCacheSkipsCredentialedRequests(t *testing.T) {
	tests := []struct {
		name  string
		setUp func(req *fasthttp.Request)
	}{
		{"cookie", func(req *fasthttp.Request) { req.Header.SetCookie("session", "alice") }},
		{"authorization", func(req *fasthttp.Request) { req.Header.Set("Authorization", "Bearer alice") }},
		{"lowercase authorization", func(req *fasthttp.Request) {
			req.Header.DisableNormalizing()
			req.Header.Set("authorization", "Bearer alice")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := startOrigin(t, func(ctx *fasthttp.RequestCtx) { ctx.SetBodyString("personal") })
			b := newBackend(t, o, enableCache)

			for i := 0; i < 2; i++ {
				ctx := newCtx("/presentation")
				tt.setUp(&ctx.Request)
				require.NoError(t, b.Proxy(ctx))
				b.cache.Wait()
				assert.Empty(t, ctx.Response.Header.Peek("X-Gate-Cache"))
			}
			assert.Equal(t, int64(2), o.hits.Load())
		})
	}
}

func TestProxy_MicroCacheHonorsOriginHeaders(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		wantHits int64
	}{
		{"set-cookie", "Set-Cookie", "session=anonymous", 2},
		{"private", "Cache-Control", "private, max-age=60", 2},
		{"no-store", "Cache-Control", "no-store", 2},
		{"no-cache", "Cache-Control", "max-age=0, No-Cache", 2},
		{"vary any", "Vary", "*", 2},
		{"vary cookie", "Vary", "Accept-Encoding, Cookie", 2},
		{"public", "Cache-Control", "public, max-age=60", 1},
		{"vary encoding", "Vary", "Accept-Encoding", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := startOrigin(t, func(ctx *fasthttp.RequestCtx) {
				ctx.Response.Header.Set(tt.key, tt.value)
				ctx.SetBodyString("slide")
			})
			b := newBackend(t, o, enableCache)

			for i := 0; i < 2; i++ {
				require.NoError(t, b.Proxy(newCtx("/presentation/slide1")))
				b.cache.Wait()
			}
			assert.Equal(t, tt.wantHits, o.hits.Load())
		})
	}
}

func TestProxy_MicroCacheSkipsNonGet(t *testing.T) {
	o := startOrigin(t, func(ctx *fasthttp.RequestCtx) { ctx.SetBodyString("posted") })
	b := newBackend(t, o, func(cfg *config.Upstream) {
		cfg.Cache = config.UpstreamCache{Enabled: true, TTL: time.Minute, MaxCost: 1 << 20}
	})

	for i := 0; i < 2; i++ {
		ctx := newCtx("/presentation/form")
		ctx.Request.Header.SetMethod(fasthttp.MethodPost)
		require.NoError(t, b.Proxy(ctx))
		assert.Empty(t, ctx.Response.Header.Peek("X-Gate-Cache"))
		b.cache.Wait()
	}
	assert.Equal(t, int64(2), o.hits.Load())
}

func TestIsHealthy(t *testing.T) {
	var status atomic.Int64
	status.Store(fasthttp.StatusOK)

	o := startOrigin(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(int(status.Load()))
	})
	b := newBackend(t, o, nil)

	assert.True(t, b.IsHealthy())

	status.Store(fasthttp.StatusNotFound)
	assert.True(t, b.IsHealthy())

	status.Store(fasthttp.StatusBadGateway)
	assert.False(t, b.IsHealthy())
}
