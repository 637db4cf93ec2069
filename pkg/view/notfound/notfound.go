// Package notfound renders the static "Page Not Found" view shown for every
// navigation the guard denies. The page has no inputs and no state: it is
// rendered once at construction together with its gzip and brotli variants.
package notfound

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	br "github.com/Borislavv/presentation-gate/pkg/encoding/brotli"
	"github.com/Borislavv/presentation-gate/pkg/encoding/gzip"
	"github.com/Borislavv/presentation-gate/pkg/http/header"
	"github.com/valyala/fasthttp"
)

const (
	Title    = "Page Not Found"
	Message  = "The page you are looking for is not available."
	ImageAlt = "Page not found"
	// ImagePath is where the illustration is served from, ahead of the guard.
	ImagePath = "/404.svg"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeSVG  = "image/svg+xml"
)

//go:embed assets/page.html.tmpl assets/404.svg
var assets embed.FS

var (
	varyKey             = []byte("Vary")
	acceptEncodingVal   = []byte("Accept-Encoding")
	cacheControlKey     = []byte("Cache-Control")
	cacheControlNoStore = []byte("no-store")
	cacheControlImage   = []byte("public, max-age=86400")
)

type page struct {
	Title    string
	Message  string
	ImageSrc string
	ImageAlt string
}

// View holds the pre-rendered page and its encodings.
type View struct {
	plain        []byte
	gzipped      []byte
	brotli       []byte
	image        []byte
	lastModified int64
}

// New renders the page and the precompressed variants.
func New() (*View, error) {
	tpl, err := template.ParseFS(assets, "assets/page.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse not found template: %w", err)
	}

	var buf bytes.Buffer
	if err = tpl.Execute(&buf, page{
		Title:    Title,
		Message:  Message,
		ImageSrc: ImagePath,
		ImageAlt: ImageAlt,
	}); err != nil {
		return nil, fmt.Errorf("render not found template: %w", err)
	}

	image, err := assets.ReadFile("assets/404.svg")
	if err != nil {
		return nil, fmt.Errorf("read not found image: %w", err)
	}

	v := &View{
		plain:        buf.Bytes(),
		image:        image,
		lastModified: time.Now().UnixNano(),
	}
	if v.gzipped, err = gzip.Encode(v.plain); err != nil {
		return nil, fmt.Errorf("gzip not found page: %w", err)
	}
	if v.brotli, err = br.Encode(v.plain); err != nil {
		return nil, fmt.Errorf("brotli not found page: %w", err)
	}

	return v, nil
}

// Body returns the uncompressed page.
func (v *View) Body() []byte {
	return v.plain
}

// Image returns the svg illustration.
func (v *View) Image() []byte {
	return v.image
}

// Handle answers 404 with the page, picking brotli, gzip or identity by Accept-Encoding.
func (v *View) Handle(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.SetContentType(contentTypeHTML)
	ctx.Response.Header.SetBytesKV(varyKey, acceptEncodingVal)
	ctx.Response.Header.SetBytesKV(cacheControlKey, cacheControlNoStore)
	header.SetLastModifiedValueFastHttp(ctx, v.lastModified)

	switch {
	case ctx.Request.Header.HasAcceptEncoding("br"):
		ctx.Response.Header.SetContentEncoding("br")
		ctx.SetBody(v.brotli)
	case ctx.Request.Header.HasAcceptEncoding("gzip"):
		ctx.Response.Header.SetContentEncoding("gzip")
		ctx.SetBody(v.gzipped)
	default:
		ctx.SetBody(v.plain)
	}
}

// HandleImage serves the svg illustration referenced by the page.
func (v *View) HandleImage(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(contentTypeSVG)
	ctx.Response.Header.SetBytesKV(cacheControlKey, cacheControlImage)
	header.SetLastModifiedValueFastHttp(ctx, v.lastModified)
	ctx.SetBody(v.image)
}
