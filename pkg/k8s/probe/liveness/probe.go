package liveness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const watchInterval = 5 * time.Second

// Service is anything able to report its own health.
type Service interface {
	IsAlive(ctx context.Context) bool
}

type Prober interface {
	Watch(services ...Service)
	IsAlive() bool
	Stop()
}

// Probe polls the watched services and caches the aggregated result,
// so the k8s endpoint never blocks on a slow check.
type Probe struct {
	timeout  time.Duration
	interval time.Duration
	alive    atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewProbe creates a probe whose single check round is bounded by timeout.
// The poll interval equals timeout when it is shorter than the default one.
func NewProbe(timeout time.Duration) *Probe {
	interval := watchInterval
	if timeout > 0 && timeout < interval {
		interval = timeout
	}
	return &Probe{timeout: timeout, interval: interval, done: make(chan struct{})}
}

// Watch starts polling services in background until Stop is called.
// A service that went away reports false.
func (p *Probe) Watch(services ...Service) {
	p.alive.Store(p.check(services))

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				alive := p.check(services)
				if p.alive.Swap(alive) != alive {
					log.Info().Msgf("[probe] liveness changed: alive=%v", alive)
				}
			}
		}
	}()
}

// Stop ends polling, the last result stays available. Safe to call more than once.
func (p *Probe) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

func (p *Probe) check(services []Service) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	for _, svc := range services {
		if !svc.IsAlive(ctx) {
			return false
		}
	}
	return true
}

// IsAlive returns the result of the last check round.
func (p *Probe) IsAlive() bool {
	return p.alive.Load()
}
