package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/tradeflow/internal/channel"
	"go.uber.org/zap"
)

// subscriberQueueConfig sizes the per-subscriber outbound buffer. Progress
// events are small and infrequent (at most a few dozen per task), so the
// channel rarely needs to grow past its initial size.
func subscriberQueueConfig() channel.TunableConfig {
	cfg := channel.DefaultTunableConfig()
	cfg.InitialSize = 32
	cfg.MinSize = 8
	cfg.MaxSize = 512
	return cfg
}

// Subscription is a live handle to one subscriber's event stream.
type Subscription struct {
	taskID string
	queue  *channel.TunableChannel[Event]
	closed atomic.Bool
}

// Events returns the channel of progress events for this subscription. It
// is closed when the subscription is removed.
func (s *Subscription) Events() <-chan Event {
	return s.queue.Chan()
}

func (s *Subscription) deliver(ev Event) {
	if s.closed.Load() {
		return
	}
	// Never block the broadcaster on a slow subscriber: a full queue drops
	// the event rather than stalling every other subscriber of this task.
	s.queue.TrySend(ev)
}

func (s *Subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		s.queue.Close()
	}
}

// Broadcaster is a shared, per-task_id pub/sub fan-out of progress events.
// Broadcasts take a read snapshot of the subscriber set, then iterate, so
// a slow subscriber never holds the write lock.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	seq         map[string]*atomic.Int64
	terminal    map[string]bool
	logger      *zap.Logger
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[*Subscription]struct{}),
		seq:         make(map[string]*atomic.Int64),
		terminal:    make(map[string]bool),
		logger:      logger.With(zap.String("component", "progress_broadcaster")),
	}
}

// Subscribe registers a new subscriber for taskID. A late subscriber (one
// that joins after some events already fired) starts receiving from now —
// there is no replay of past events.
func (b *Broadcaster) Subscribe(taskID string) *Subscription {
	sub := &Subscription{taskID: taskID, queue: channel.NewTunableChannel[Event](subscriberQueueConfig())}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[taskID] == nil {
		b.subscribers[taskID] = make(map[*Subscription]struct{})
	}
	b.subscribers[taskID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from taskID's subscriber set and closes its
// event channel. Called on client disconnect.
func (b *Broadcaster) Unsubscribe(taskID string, sub *Subscription) {
	b.mu.Lock()
	if subs, ok := b.subscribers[taskID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, taskID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

// MarkTerminal marks taskID as finished; any Publish call after this point
// is dropped as a late update for an already-terminal task. It does not
// close existing subscriber sockets — the connection stays open until the
// client closes it; no further events are sent on it.
func (b *Broadcaster) MarkTerminal(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminal[taskID] = true
}

// Reset clears terminal/sequence bookkeeping for taskID, e.g. on resubmit.
func (b *Broadcaster) Reset(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.terminal, taskID)
	delete(b.seq, taskID)
}

// Publish delivers a progress event to every current subscriber of taskID,
// in node-completion order, tagged with a per-task monotonic sequence
// number. A no-op if taskID is already marked terminal.
func (b *Broadcaster) Publish(ctx context.Context, taskID, node, displayName string, percent float64, message string) {
	b.mu.RLock()
	isTerminal := b.terminal[taskID]
	b.mu.RUnlock()
	if isTerminal {
		b.logger.Debug("dropping late progress event for terminal task", zap.String("task_id", taskID))
		return
	}

	seqCounter := b.seqCounter(taskID)
	ev := Event{
		TaskID:      taskID,
		Node:        node,
		DisplayName: displayName,
		Progress:    percent,
		Message:     message,
		Seq:         seqCounter.Add(1),
		TS:          time.Now(),
	}

	b.mu.RLock()
	subs := b.subscribers[taskID]
	snapshot := make([]*Subscription, 0, len(subs))
	for s := range subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	for _, s := range snapshot {
		s.deliver(ev)
	}
}

func (b *Broadcaster) seqCounter(taskID string) *atomic.Int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.seq[taskID]
	if !ok {
		c = &atomic.Int64{}
		b.seq[taskID] = c
	}
	return c
}
