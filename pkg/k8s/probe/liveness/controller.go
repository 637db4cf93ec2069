package liveness

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

const K8SProbePath = "/k8s/probe"

var (
	aliveResponseBytes = []byte(`{"data":{"alive":true}}`)
	deadResponseBytes  = []byte(`{"data":{"alive":false}}`)
)

type Controller struct {
	probe Prober
}

func NewController(probe Prober) *Controller {
	return &Controller{probe: probe}
}

func (c *Controller) Probe(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	if c.probe.IsAlive() {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBody(aliveResponseBytes)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	ctx.SetBody(deadResponseBytes)
}

func (c *Controller) AddRoute(r *router.Router) {
	r.GET(K8SProbePath, c.Probe)
}
