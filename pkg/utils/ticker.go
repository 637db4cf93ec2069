package utils

import (
	"context"
	"time"
)

// NewTicker ticks immediately and then every interval until ctx is done,
// the returned channel is closed afterwards.
func NewTicker(ctx context.Context, interval time.Duration) (ch <-chan time.Time) {
	tickCh := make(chan time.Time, 1)
	tickCh <- time.Now()

	go func() {
		ticker := time.NewTicker(interval)
		defer func() {
			ticker.Stop()
			close(tickCh)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case tickCh <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return tickCh
}
