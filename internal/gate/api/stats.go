package api

import (
	"strconv"
	"time"

	"github.com/Borislavv/presentation-gate/pkg/utils"
	"github.com/rs/zerolog/log"
)

const logIntervalSecs = 5

// Stats is a snapshot of the frontend counters for one logging period.
type Stats struct {
	Total       uint64
	Passed      uint64
	Fallbacks   uint64
	Assets      uint64
	Failures    uint64
	AvgDuration time.Duration
}

// swapStats resets the counters and returns their values.
func swapStats() Stats {
	s := Stats{
		Total:     total.Swap(0),
		Passed:    passed.Swap(0),
		Fallbacks: fallbacks.Swap(0),
		Assets:    assets.Swap(0),
		Failures:  failures.Swap(0),
	}
	if duration := totalDuration.Swap(0); s.Total > 0 {
		s.AvgDuration = time.Duration(duration / int64(s.Total))
	}
	return s
}

func (c *FrontendController) runLoggerStatsWriter() {
	go func() {
		ticker := utils.NewTicker(c.ctx, logIntervalSecs*time.Second)
		prev, ok := <-ticker // the first tick is immediate, it only starts the period
		if !ok {
			return
		}

		for {
			select {
			case <-c.ctx.Done():
				return
			case now, ok := <-ticker:
				if !ok {
					return
				}
				elapsed := now.Sub(prev)
				if elapsed <= 0 {
					continue
				}
				prev = now

				s := swapStats()
				if s.Total == 0 {
					continue
				}
				rps := float64(s.Total) / elapsed.Seconds()

				logEvent := log.Info()
				if c.cfg.IsProd() {
					logEvent.
						Str("target", "frontend").
						Str("rps", strconv.Itoa(int(rps))).
						Str("served", strconv.FormatUint(s.Total, 10)).
						Str("passed", strconv.FormatUint(s.Passed, 10)).
						Str("fallbacks", strconv.FormatUint(s.Fallbacks, 10)).
						Str("assets", strconv.FormatUint(s.Assets, 10)).
						Str("failures", strconv.FormatUint(s.Failures, 10)).
						Str("avgDuration", s.AvgDuration.String()).
						Str("elapsed", elapsed.String())
				}
				logEvent.Msgf(
					"[frontend][%s] served %d requests (passed: %d, fallbacks: %d, assets: %d, failures: %d, rps: %d, avg.: %s)",
					elapsed.Round(time.Second), s.Total, s.Passed, s.Fallbacks, s.Assets, s.Failures, int(rps), s.AvgDuration,
				)
			}
		}
	}()
}
