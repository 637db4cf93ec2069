package notfound

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newCtx(acceptEncoding string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.SetRequestURI("/about")
	if acceptEncoding != "" {
		req.Header.Set(fasthttp.HeaderAcceptEncoding, acceptEncoding)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func TestNew_RendersStaticPage(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	body := string(v.Body())
	assert.Contains(t, body, "<title>Page Not Found</title>")
	assert.Contains(t, body, "<h1>Page Not Found</h1>")
	assert.Contains(t, body, "The page you are looking for is not available.")
	assert.Contains(t, body, `<img src="/404.svg" alt="Page not found">`)
	assert.Contains(t, string(v.Image()), "<svg")
}

func TestHandle_IdentityEncoding(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	ctx := newCtx("")
	v.Handle(ctx)

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Equal(t, "text/html; charset=utf-8", string(ctx.Response.Header.ContentType()))
	assert.Empty(t, ctx.Response.Header.ContentEncoding())
	assert.NotEmpty(t, ctx.Response.Header.Peek("Last-Modified"))
	assert.Equal(t, v.Body(), ctx.Response.Body())
}

func TestHandle_NegotiatesEncoding(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	tests := []struct {
		name           string
		acceptEncoding string
		wantEncoding   string
		decode         func(resp *fasthttp.Response) ([]byte, error)
	}{
		{"gzip", "gzip", "gzip", (*fasthttp.Response).BodyGunzip},
		{"brotli preferred", "gzip, deflate, br", "br", (*fasthttp.Response).BodyUnbrotli},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newCtx(tt.acceptEncoding)
			v.Handle(ctx)

			assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
			assert.Equal(t, tt.wantEncoding, string(ctx.Response.Header.ContentEncoding()))
			assert.Equal(t, "Accept-Encoding", string(ctx.Response.Header.Peek("Vary")))

			plain, err := tt.decode(&ctx.Response)
			require.NoError(t, err)
			assert.Equal(t, v.Body(), plain)
		})
	}
}

func TestHandle_SameOutputEveryTime(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	first, second := newCtx(""), newCtx("")
	v.Handle(first)
	v.Handle(second)

	assert.Equal(t, first.Response.Body(), second.Response.Body())
	assert.Equal(t, first.Response.StatusCode(), second.Response.StatusCode())
}

func TestHandleImage(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	ctx := newCtx("")
	v.HandleImage(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "image/svg+xml", string(ctx.Response.Header.ContentType()))
	assert.Equal(t, v.Image(), ctx.Response.Body())
}
