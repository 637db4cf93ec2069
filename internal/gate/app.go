package gate

import (
	"context"
	"fmt"

	"github.com/Borislavv/presentation-gate/internal/gate/server"
	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/Borislavv/presentation-gate/pkg/guard"
	"github.com/Borislavv/presentation-gate/pkg/k8s/probe/liveness"
	"github.com/Borislavv/presentation-gate/pkg/prometheus/metrics"
	"github.com/Borislavv/presentation-gate/pkg/shutdown"
	"github.com/Borislavv/presentation-gate/pkg/upstream"
	"github.com/Borislavv/presentation-gate/pkg/view/notfound"
	"github.com/rs/zerolog/log"
)

// App defines the gate application lifecycle interface.
type App interface {
	Start(gc shutdown.Gracefuller)
}

// Gate encapsulates the application state: HTTP server, upstream, config and probes.
type Gate struct {
	cfg     *config.Gate
	ctx     context.Context
	cancel  context.CancelFunc
	probe   liveness.Prober
	server  server.Http
	backend *upstream.Backend
}

// NewApp builds a new Gate app, wiring together the guard, upstream, fallback view and server.
func NewApp(ctx context.Context, cfg *config.Gate, probe liveness.Prober, opts ...server.Option) (*Gate, error) {
	ctx, cancel := context.WithCancel(ctx)

	backend, err := upstream.NewBackend(cfg.Upstream())
	if err != nil {
		cancel()
		return nil, err
	}

	view, err := notfound.New()
	if err != nil {
		cancel()
		backend.Close()
		return nil, fmt.Errorf("init not found view: %w", err)
	}

	srv, err := server.New(ctx, cfg, guard.New(cfg), backend, view, probe, metrics.New(), opts...)
	if err != nil {
		cancel()
		backend.Close()
		return nil, err
	}

	return &Gate{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		probe:   probe,
		server:  srv,
		backend: backend,
	}, nil
}

// Start runs the server and liveness probe and blocks until the server exits.
// The Gracefuller is notified with Done() once the app has stopped.
func (g *Gate) Start(gc shutdown.Gracefuller) {
	defer func() {
		g.stop()
		gc.Done()
	}()

	log.Info().Msg("[app] starting gate")

	if !g.backend.IsHealthy() {
		log.Warn().Msgf("[app] upstream %s does not respond yet", g.cfg.Upstream().Url)
	}

	waitCh := make(chan struct{})

	go func() {
		defer close(waitCh)
		g.probe.Watch(g) // Call first due to it does not block the green-thread
		g.server.Start() // Blocks the green-thread until the server will be stopped
	}()

	log.Info().Msg("[app] gate has been started")

	<-waitCh // Wait until the server exits
}

// stop cancels the main application context, ends liveness polling and releases the upstream.
func (g *Gate) stop() {
	log.Info().Msg("[app] stopping gate")

	g.cancel()
	g.probe.Stop()
	g.backend.Close()

	log.Info().Msg("[app] gate has been stopped")
}

// IsAlive is called by liveness probes to check app health.
// Returns false if the HTTP server is not alive.
func (g *Gate) IsAlive(_ context.Context) bool {
	if !g.server.IsAlive() {
		log.Info().Msg("[app] http server has gone away")
		return false
	}
	return true
}
