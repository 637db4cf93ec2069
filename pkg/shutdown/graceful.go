package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultGracefulTimeout = 10 * time.Second

var ErrGracefulTimeoutExceeded = errors.New("graceful shutdown timeout exceeded")

// Gracefuller is handed to every long-living service; a service calls Done once it has stopped.
type Gracefuller interface {
	Add(n int)
	Done()
}

type Graceful struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewGraceful(ctx context.Context, cancel context.CancelFunc) *Graceful {
	return &Graceful{ctx: ctx, cancel: cancel, timeout: defaultGracefulTimeout}
}

func (g *Graceful) SetGracefulTimeout(timeout time.Duration) {
	g.timeout = timeout
}

func (g *Graceful) Add(n int) {
	g.wg.Add(n)
}

func (g *Graceful) Done() {
	g.wg.Done()
}

// ListenCancelAndAwait blocks until SIGINT/SIGTERM or the context cancellation,
// cancels the context and waits for the registered services within the timeout.
func (g *Graceful) ListenCancelAndAwait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("[shutdown] received signal %v", sig)
	case <-g.ctx.Done():
		log.Info().Msg("[shutdown] context has been canceled")
	}
	g.cancel()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		g.wg.Wait()
	}()

	select {
	case <-doneCh:
		log.Info().Msg("[shutdown] all services have been stopped")
		return nil
	case <-time.After(g.timeout):
		return ErrGracefulTimeoutExceeded
	}
}
