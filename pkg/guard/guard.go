// Package guard decides whether a page navigation reaches the front-end or
// renders the not found view.
//
// The decision is a pure function of the restriction flag and the current
// path: with the flag off every path passes, with the flag on only paths that
// begin with "/presentation" pass. The check is a literal string prefix, so
// "/presentation-extra" passes as well and no case folding or trailing slash
// handling happens.
package guard

import (
	"errors"
	"strings"

	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/Borislavv/presentation-gate/pkg/http/template"
	"github.com/Borislavv/presentation-gate/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog/log"
	"github.com/savsgio/gotils/strconv"
	"github.com/valyala/fasthttp"
)

// ErrNoPath is returned when the current path cannot be resolved.
// Reaching the guard without a path is a programming error.
var ErrNoPath = errors.New("current path is unavailable")

var (
	passedCounter   = metrics.NewCounter(keyword.DecisionsMetricName + `{decision="pass_through"}`)
	fallbackCounter = metrics.NewCounter(keyword.DecisionsMetricName + `{decision="fallback"}`)
	noPathCounter   = metrics.NewCounter(keyword.DecisionsMetricName + `{decision="no_path"}`)
)

// Decision is the rendering choice for a single navigation.
type Decision uint8

const (
	PassThrough Decision = iota // render the wrapped content
	Fallback                    // render the not found view
)

func (d Decision) String() string {
	switch d {
	case PassThrough:
		return "pass_through"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Flag is the part of the configuration the guard depends on.
type Flag interface {
	RestrictToPresentationOnly() bool
}

// Guard holds the restriction flag captured at construction.
type Guard struct {
	restricted bool
}

// New captures the flag once; later changes of the source do not affect the guard.
func New(cfg Flag) *Guard {
	return &Guard{restricted: cfg.RestrictToPresentationOnly()}
}

// IsRestricted reports the captured flag.
func (g *Guard) IsRestricted() bool {
	return g.restricted
}

// Decide returns PassThrough or Fallback for the path.
func (g *Guard) Decide(path string) Decision {
	if !g.restricted {
		return PassThrough
	}
	if strings.HasPrefix(path, config.PresentationPrefix) {
		return PassThrough
	}
	return Fallback
}

// Allows is Decide(path) == PassThrough.
func (g *Guard) Allows(path string) bool {
	return g.Decide(path) == PassThrough
}

// PathOf resolves the normalized request path of ctx.
// The returned string aliases the request buffer and must not outlive the request.
func PathOf(ctx *fasthttp.RequestCtx) (string, error) {
	if ctx == nil {
		return "", ErrNoPath
	}
	path := ctx.Path()
	if path == nil {
		return "", ErrNoPath
	}
	return strconv.B2S(path), nil
}

// Wrap renders children when the current path passes and fallback otherwise.
// An unresolvable path is answered with 500, never with either view.
func (g *Guard) Wrap(children, fallback fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path, err := PathOf(ctx)
		if err != nil {
			noPathCounter.Inc()
			log.Error().Err(err).Msg("[guard] failed to resolve current path")
			if ctx != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetContentType(template.ContentTypeJSON)
				ctx.SetBody(template.InternalError(err))
			}
			return
		}

		if g.Decide(path) == PassThrough {
			passedCounter.Inc()
			children(ctx)
			return
		}

		fallbackCounter.Inc()
		fallback(ctx)
	}
}
