package mcpbridge

import (
	"context"
	"fmt"
	"time"
)

// ErrRestartBudgetExhausted is returned when a server has already been
// restarted MaxRestarts times within the rolling Window.
var ErrRestartBudgetExhausted = fmt.Errorf("mcpbridge: restart budget exhausted")

// RestartServer is the manual restart operation. Automatic
// restart on health-check failure is deliberately never performed.
func (b *Bridge) RestartServer(ctx context.Context, name string) error {
	b.mu.Lock()
	conn, ok := b.conns[name]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("mcpbridge: unknown server %q", name)
	}
	sc := conn.cfg
	b.mu.Unlock()

	conn.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-b.restart.Window)
	fresh := conn.restarts[:0]
	for _, t := range conn.restarts {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= b.restart.MaxRestarts {
		conn.restarts = fresh
		conn.mu.Unlock()
		return ErrRestartBudgetExhausted
	}
	conn.restarts = append(fresh, now)
	conn.mu.Unlock()

	b.mu.Lock()
	closeConnection(conn)
	newConn, err := b.dialLocked(ctx, sc)
	if err != nil {
		b.conns[name] = &connection{cfg: sc, health: HealthUnreachable, restarts: conn.restarts}
		b.mu.Unlock()
		return fmt.Errorf("mcpbridge: restart %s: %w", name, err)
	}
	newConn.restarts = conn.restarts
	b.conns[name] = newConn
	b.mu.Unlock()
	return nil
}
