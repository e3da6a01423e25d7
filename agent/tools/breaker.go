package tools

import (
	"sync"

	"github.com/BaSui01/tradeflow/llm/circuitbreaker"
	"go.uber.org/zap"
)

// TaskBreakers owns one circuitbreaker.CircuitBreaker per (taskID, toolName)
// pair for MCP-bridged tools; local (in-process) tools bypass the breaker
// entirely. Breakers are destroyed with the task: call
// Release when the owning task finishes.
type TaskBreakers struct {
	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker
	cfg      *circuitbreaker.Config
	logger   *zap.Logger
}

// NewTaskBreakers creates an empty breaker set for one task. cfg is applied
// to every breaker constructed on demand; nil uses circuitbreaker.DefaultConfig().
func NewTaskBreakers(cfg *circuitbreaker.Config, logger *zap.Logger) *TaskBreakers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskBreakers{breakers: make(map[string]circuitbreaker.CircuitBreaker), cfg: cfg, logger: logger}
}

// For returns the breaker for toolName, constructing one on first use.
func (b *TaskBreakers) For(toolName string) circuitbreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[toolName]; ok {
		return cb
	}
	cfg := b.cfg
	if cfg == nil {
		cfg = circuitbreaker.DefaultConfig()
	}
	cb := circuitbreaker.NewCircuitBreaker(cfg, b.logger)
	b.breakers[toolName] = cb
	return cb
}

// Release drops every breaker this task owns, called once the task
// reaches a terminal state (completed/failed/cancelled).
func (b *TaskBreakers) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.breakers = make(map[string]circuitbreaker.CircuitBreaker)
}
