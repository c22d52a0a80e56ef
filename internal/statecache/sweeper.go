package statecache

import (
	"context"
	"time"

	"freshtrack/internal/types"
)

// RunSweeper sweeps expired entries on a fixed interval until the context is
// cancelled. Intended to run in its own goroutine alongside a long-lived
// server process; Lambda workers skip it and rely on TTL checks at read time.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration, logger types.Logger) {
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
			if removed := c.Sweep(); removed > 0 && logger != nil {
				logger.Info("state cache sweep", "removed", removed, "remaining", c.Len())
			}
		}
	}
}
