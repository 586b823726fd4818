package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReportStats logs connection counters every interval, resetting them each
// time. Quiet intervals are skipped.
func (s *Server) ReportStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			accepted := s.stats.accepted.Swap(0)
			badRequests := s.stats.badRequests.Swap(0)
			timeouts := s.stats.timeouts.Swap(0)
			hijacked := s.stats.hijacked.Swap(0)

			if accepted == 0 && badRequests == 0 && timeouts == 0 && hijacked == 0 {
				continue
			}
			s.logger.Info("transport stats",
				zap.Uint64("accepted", accepted),
				zap.Uint64("bad_request", badRequests),
				zap.Uint64("read_timeout", timeouts),
				zap.Uint64("hijacked", hijacked),
			)
		}
	}
}
