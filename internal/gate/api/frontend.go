package api

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/Borislavv/presentation-gate/pkg/guard"
	"github.com/Borislavv/presentation-gate/pkg/http/template"
	"github.com/Borislavv/presentation-gate/pkg/upstream"
	"github.com/rs/zerolog/log"
	"github.com/savsgio/gotils/strconv"
	"github.com/valyala/fasthttp"
)

var (
	total         = &atomic.Uint64{}
	passed        = &atomic.Uint64{}
	fallbacks     = &atomic.Uint64{}
	assets        = &atomic.Uint64{}
	failures      = &atomic.Uint64{}
	totalDuration = &atomic.Int64{} // nanoseconds
)

// FrontendController handles every request no other controller claimed:
// asset prefixes go straight to the origin, page navigations pass the guard first.
type FrontendController struct {
	ctx         context.Context
	cfg         *config.Gate
	backend     upstream.Upstream
	passthrough []string
	guarded     fasthttp.RequestHandler
}

// NewFrontendController wires the guard between the origin and the not found view.
func NewFrontendController(
	ctx context.Context,
	cfg *config.Gate,
	g *guard.Guard,
	backend upstream.Upstream,
	fallback fasthttp.RequestHandler,
) *FrontendController {
	c := &FrontendController{
		ctx:         ctx,
		cfg:         cfg,
		backend:     backend,
		passthrough: cfg.Assets().PassthroughPrefixes,
	}
	c.guarded = g.Wrap(c.children, c.fallback(fallback))

	log.Info().Msgf("[frontend] restricted to %s only: %v", config.PresentationPrefix, g.IsRestricted())

	c.runLoggerStatsWriter()
	return c
}

// Index is the catch-all handler.
func (c *FrontendController) Index(ctx *fasthttp.RequestCtx) {
	from := time.Now()
	defer func() { totalDuration.Add(time.Since(from).Nanoseconds()) }()

	total.Add(1)
	if c.isAsset(strconv.B2S(ctx.Path())) {
		assets.Add(1)
		c.proxy(ctx)
		return
	}
	c.guarded(ctx)
}

func (c *FrontendController) isAsset(path string) bool {
	for _, prefix := range c.passthrough {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (c *FrontendController) children(ctx *fasthttp.RequestCtx) {
	passed.Add(1)
	c.proxy(ctx)
}

func (c *FrontendController) fallback(view fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		fallbacks.Add(1)
		view(ctx)
	}
}

func (c *FrontendController) proxy(ctx *fasthttp.RequestCtx) {
	err := c.backend.Proxy(ctx)
	if err == nil {
		return
	}

	failures.Add(1)
	// details stay in the log, clients only get the sentinel message
	ctx.Response.ResetBody()
	ctx.SetContentType(template.ContentTypeJSON)

	if errors.Is(err, upstream.ErrRateLimited) {
		log.Warn().Err(err).Msg("[frontend] upstream request rejected")
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
		ctx.SetBody(template.TooManyRequests(upstream.ErrRateLimited))
		return
	}

	log.Error().Err(err).Msg("[frontend] upstream request failed")
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	ctx.SetBody(template.Unavailable(upstream.ErrUpstreamUnavailable))
}
