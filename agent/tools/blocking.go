package tools

import (
	"context"
	"fmt"
)

// BlockingFunc is a synchronous tool body that may block on I/O (file
// reads, subprocess calls, CPU-bound parsing).
type BlockingFunc func() (string, error)

// RunBlocking isolates a synchronous tool body on its own goroutine so a
// slow or hanging call never blocks the caller's goroutine from being
// scheduled for other work, and always honors ctx's cancellation/timeout.
// Mirrors the buffered-channel idiom in llm/tools.DefaultExecutor.ExecuteOne:
// the result channel is buffered so the spawned goroutine can always send
// and exit even after the caller has stopped waiting.
func RunBlocking(ctx context.Context, fn BlockingFunc) (string, error) {
	done := make(chan struct {
		out string
		err error
	}, 1)

	go func() {
		out, err := fn()
		select {
		case done <- struct {
			out string
			err error
		}{out, err}:
		case <-ctx.Done():
		}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("tool execution: %w", ctx.Err())
	}
}
