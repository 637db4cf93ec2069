package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/presentation-gate/internal/gate/api"
	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/Borislavv/presentation-gate/pkg/guard"
	httpserver "github.com/Borislavv/presentation-gate/pkg/http/server"
	"github.com/Borislavv/presentation-gate/pkg/http/server/controller"
	"github.com/Borislavv/presentation-gate/pkg/http/server/middleware"
	"github.com/Borislavv/presentation-gate/pkg/k8s/probe/liveness"
	"github.com/Borislavv/presentation-gate/pkg/prometheus/metrics"
	metricscontroller "github.com/Borislavv/presentation-gate/pkg/prometheus/metrics/controller"
	"github.com/Borislavv/presentation-gate/pkg/upstream"
	"github.com/Borislavv/presentation-gate/pkg/view/notfound"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

var (
	InitFailedErrorMessage = "[server] init. failed"
)

// Http interface exposes methods for starting and liveness probing.
type Http interface {
	Start()
	IsAlive() bool
}

// HttpServer implements Http, wraps all dependencies required for running the HTTP server.
type HttpServer struct {
	ctx           context.Context
	cfg           *config.Gate
	guard         *guard.Guard
	backend       upstream.Upstream
	view          *notfound.View
	probe         liveness.Prober
	metrics       metrics.Meter
	server        *httpserver.HTTP
	listener      net.Listener
	isServerAlive *atomic.Bool
}

type Option func(*HttpServer)

// WithListener serves on ln instead of the configured port.
func WithListener(ln net.Listener) Option {
	return func(s *HttpServer) { s.listener = ln }
}

// New creates a new HttpServer, initializing the HTTP server with all controllers and middlewares.
func New(
	ctx context.Context,
	cfg *config.Gate,
	g *guard.Guard,
	backend upstream.Upstream,
	view *notfound.View,
	probe liveness.Prober,
	meter metrics.Meter,
	opts ...Option,
) (*HttpServer, error) {
	srv := &HttpServer{
		ctx:           ctx,
		cfg:           cfg,
		guard:         g,
		backend:       backend,
		view:          view,
		probe:         probe,
		metrics:       meter,
		isServerAlive: &atomic.Bool{},
	}
	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.initServer(); err != nil {
		log.Err(err).Msg(InitFailedErrorMessage)
		return nil, errors.New(InitFailedErrorMessage)
	}

	return srv, nil
}

// Start runs the HTTP server in a goroutine and waits for it to finish.
func (s *HttpServer) Start() {
	waitCh := make(chan struct{})

	go func() {
		defer close(waitCh)
		wg := &sync.WaitGroup{}
		defer wg.Wait()
		s.spawnServer(wg)
	}()

	<-waitCh
}

// IsAlive returns true if the server is marked as alive.
func (s *HttpServer) IsAlive() bool {
	return s.isServerAlive.Load()
}

// Handler returns the composed request handler.
func (s *HttpServer) Handler() fasthttp.RequestHandler {
	return s.server.Handler()
}

// spawnServer starts the HTTP server in a new goroutine, sets server liveness flags, and blocks until it exits.
func (s *HttpServer) spawnServer(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer func() {
			s.isServerAlive.Store(false)
			wg.Done()
		}()
		s.isServerAlive.Store(true)
		if s.listener != nil {
			s.server.Serve(s.listener)
		} else {
			s.server.ListenAndServe()
		}
	}()
}

// initServer creates the HTTP server instance, sets up controllers and middlewares, and stores the result.
func (s *HttpServer) initServer() error {
	frontend := api.NewFrontendController(s.ctx, s.cfg, s.guard, s.backend, s.view.Handle)

	server, err := httpserver.New(s.ctx, s.cfg.Api(), s.controllers(), s.middlewares(), frontend.Index)
	if err != nil {
		return err
	}
	s.server = server

	return nil
}

// controllers returns the routes served ahead of the guard.
func (s *HttpServer) controllers() []controller.HttpController {
	return []controller.HttpController{
		liveness.NewController(s.probe),          // healthcheck probe endpoint
		metricscontroller.NewPrometheusMetrics(), // metrics endpoint
		api.NewAssetController(s.view),           // not found illustration
	}
}

// middlewares returns the request middlewares for the server, the first one is the outermost.
func (s *HttpServer) middlewares() []middleware.HttpMiddleware {
	return []middleware.HttpMiddleware{
		/** exec 1st. */ middleware.NewMetricsMiddleware(s.metrics),      // counts requests and response time
		/** exec 2nd. */ middleware.NewServerNameMiddleware(s.cfg.Api()), // sets the Server: presentation.gate
	}
}
