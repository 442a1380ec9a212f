package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/telhawk-systems/cardvault/vault/internal/metrics"
)

// Sweep evicts every expired session and returns how many were removed.
func (g *Gate) Sweep(ctx context.Context) int {
	now := g.now()

	g.mu.Lock()
	removed := 0
	for id, s := range g.sessions {
		if !s.IsActive(now) {
			delete(g.sessions, id)
			removed++
		}
	}
	metrics.SessionsActive.Set(float64(len(g.sessions)))
	g.mu.Unlock()

	if removed > 0 {
		g.logger.DebugContext(ctx, "swept expired sessions", slog.Int("count", removed))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (g *Gate) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	g.logger.InfoContext(ctx, "session sweeper started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.InfoContext(ctx, "session sweeper stopped")
			return
		case <-ticker.C:
			g.Sweep(ctx)
		}
	}
}
