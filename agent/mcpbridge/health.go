package mcpbridge

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthSnapshot is the point-in-time status of every known server.
type HealthSnapshot map[string]HealthStatus

// CheckHealth pings every connected server and updates its cached status.
// Automatic restart is never performed here — restart is always the
// explicit, manual RestartServer call.
func (b *Bridge) CheckHealth(ctx context.Context) HealthSnapshot {
	b.mu.Lock()
	conns := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	snapshot := make(HealthSnapshot, len(conns))
	for _, conn := range conns {
		conn.mu.Lock()
		name := conn.cfg.Name
		if !conn.cfg.Enabled || conn.client == nil {
			conn.health = HealthStopped
		} else if err := conn.client.ping(ctx); err != nil {
			conn.health = HealthUnreachable
		} else {
			conn.health = HealthHealthy
		}
		status := conn.health
		conn.mu.Unlock()
		snapshot[name] = status
	}
	return snapshot
}

// StartHealthPolling runs CheckHealth every interval until ctx is
// cancelled. Callers own the goroutine lifetime via ctx.
func (b *Bridge) StartHealthPolling(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := b.CheckHealth(ctx)
				for name, status := range snapshot {
					if status != HealthHealthy {
						logger.Warn("mcp server unhealthy", zap.String("server", name), zap.String("status", string(status)))
					}
				}
			}
		}
	}()
}
