package middleware

import (
	"github.com/Borislavv/presentation-gate/pkg/prometheus/metrics"
	"github.com/savsgio/gotils/strconv"
	"github.com/valyala/fasthttp"
)

// MetricsMiddleware counts requests, responses by status and response time per method.
type MetricsMiddleware struct {
	meter metrics.Meter
}

func NewMetricsMiddleware(meter metrics.Meter) MetricsMiddleware {
	return MetricsMiddleware{meter: meter}
}

func (m MetricsMiddleware) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := strconv.B2S(ctx.Method())

		m.meter.IncTotal(method)
		timer := m.meter.NewResponseTimeTimer(method)

		next(ctx)

		m.meter.FlushResponseTimeTimer(timer)
		m.meter.IncStatus(method, ctx.Response.StatusCode())
	}
}
