package httpserver

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/Borislavv/presentation-gate/pkg/http/server/controller"
	"github.com/Borislavv/presentation-gate/pkg/http/server/middleware"
	"github.com/Borislavv/presentation-gate/pkg/http/template"
	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const shutdownTimeout = 10 * time.Second

var errPanicked = errors.New("internal server error")

type Server interface {
	ListenAndServe()
	Serve(ln net.Listener)
}

type HTTP struct {
	ctx    context.Context
	cfg    config.Api
	server *fasthttp.Server
}

// New composes the router out of controllers and wraps it with middlewares.
// Requests matching no controller route reach notFound.
func New(
	ctx context.Context,
	cfg config.Api,
	controllers []controller.HttpController,
	middlewares []middleware.HttpMiddleware,
	notFound fasthttp.RequestHandler,
) (*HTTP, error) {
	if cfg.Port == "" {
		return nil, errors.New("http server port is empty")
	}
	s := &HTTP{ctx: ctx, cfg: cfg}
	s.initServer(s.buildRouter(controllers, notFound), middlewares)
	return s, nil
}

// ListenAndServe listens on the configured port and blocks until the server is shut down.
func (s *HTTP) ListenAndServe() {
	port := s.cfg.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	s.run(port, func() error { return s.server.ListenAndServe(port) })
}

// Serve is ListenAndServe over an existing listener.
func (s *HTTP) Serve(ln net.Listener) {
	s.run(ln.Addr().String(), func() error { return s.server.Serve(ln) })
}

func (s *HTTP) run(addr string, serve func() error) {
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	serveDoneCh := make(chan struct{})

	wg.Add(1)
	go s.serve(wg, addr, serve, serveDoneCh)

	wg.Add(1)
	go s.shutdown(wg, serveDoneCh)
}

func (s *HTTP) serve(wg *sync.WaitGroup, addr string, serve func() error, doneCh chan<- struct{}) {
	defer func() {
		close(doneCh)
		wg.Done()
	}()

	log.Info().Msgf("[server] %v was started on %v", s.cfg.Name, addr)
	defer log.Info().Msgf("[server] %v was stopped on %v", s.cfg.Name, addr)

	if err := serve(); err != nil {
		log.Error().Err(err).Msgf("[server] %v failed to listen and serve %v", s.cfg.Name, addr)
	}
}

func (s *HTTP) shutdown(wg *sync.WaitGroup, serveDoneCh <-chan struct{}) {
	defer wg.Done()

	select {
	case <-s.ctx.Done():
	case <-serveDoneCh:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Msgf("[server] %v shutdown failed: %v", s.cfg.Name, err.Error())
		}
	}
}

func (s *HTTP) buildRouter(controllers []controller.HttpController, notFound fasthttp.RequestHandler) *router.Router {
	r := router.New()
	// paths are matched as they are, the guard sees exactly what the client asked for
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.PanicHandler = panicHandler
	r.NotFound = notFound

	for _, contr := range controllers {
		contr.AddRoute(r)
	}
	return r
}

func panicHandler(ctx *fasthttp.RequestCtx, rcv interface{}) {
	log.Error().Msgf("[server] recovered from panic on %s: %v", ctx.Path(), rcv)
	ctx.ResetBody()
	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	ctx.SetContentType(template.ContentTypeJSON)
	ctx.SetBody(template.InternalError(errPanicked))
}

func (s *HTTP) mergeMiddlewares(
	handler fasthttp.RequestHandler,
	middlewares []middleware.HttpMiddleware,
) fasthttp.RequestHandler {
	// last middlewares must be applied at the end
	// in this case we must start the cycle from the end of slice
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Middleware(handler)
	}
	return handler
}

// Handler is the composed handler, exposed for in-process tests.
func (s *HTTP) Handler() fasthttp.RequestHandler {
	return s.server.Handler
}

func (s *HTTP) initServer(r *router.Router, middlewares []middleware.HttpMiddleware) {
	s.server = &fasthttp.Server{
		Handler:                       s.mergeMiddlewares(r.Handler, middlewares),
		ReduceMemoryUsage:             true,             // Reuse internal buffers aggressively to lower memory footprint.
		DisablePreParseMultipartForm:  true,             // Bodies are proxied as they are.
		DisableHeaderNamesNormalizing: true,             // Header names reach the origin untouched.
		CloseOnShutdown:               true,             // Close open connections on graceful shutdown.
		ReadBufferSize:                8 * 1024,         // Browsers send large cookie headers.
		WriteBufferSize:               8 * 1024,
		ReadTimeout:                   10 * time.Second, // Mitigates slowloris.
		WriteTimeout:                  30 * time.Second, // Proxied pages may be slow to render.
		IdleTimeout:                   60 * time.Second,
		TCPKeepalive:                  true,
		TCPKeepalivePeriod:            30 * time.Second,
		NoDefaultServerHeader:         true,
		MaxRequestBodySize:            10 << 20, // 10 MiB
	}
}
