package controller

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

const PrometheusMetricsPath = "/metrics"

// PrometheusMetrics exposes every registered metric in the Prometheus text format.
type PrometheusMetrics struct{}

func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

func (c *PrometheusMetrics) Get(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	metrics.WritePrometheus(ctx, true)
}

func (c *PrometheusMetrics) AddRoute(r *router.Router) {
	r.GET(PrometheusMetricsPath, c.Get)
}
