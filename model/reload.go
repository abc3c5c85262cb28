package model

import (
	"context"
	"log"
	"time"
)

// WatchReload polls CheckReload every interval until ctx is canceled,
// logging successes and swallowing transient errors; a stale model
// still in use is better than a crashed worker. The inference server
// runs this on a timer. Self-play workers do not call it and have no
// reload-message path; a worker rebuilds its cached evaluator only when
// the Store it is given, or that Store's fingerprint, changes.
func (s *Store) WatchReload(ctx context.Context, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reloaded, err := s.CheckReload()
			if err != nil {
				if logger != nil {
					logger.Printf("model: reload check failed: %v", err)
				}
				continue
			}
			if reloaded && logger != nil {
				logger.Printf("model: reloaded, fingerprint=%s", s.Fingerprint())
			}
		}
	}
}
