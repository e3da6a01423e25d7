package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/tradeflow/agent/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner executes one analysis task's graph run. The manager owns task
// bookkeeping (status, progress persistence, cancellation); Runner owns
// invoking the agent graph controller.
type Runner interface {
	RunAnalysis(ctx context.Context, task *persistence.AsyncTask, cancelled func() bool) (result map[string]any, err error)
}

// Manager is the task lifecycle manager: creates task records, launches
// execution, tracks status/progress/result, supports cancellation and
// zombie reclamation.
type Manager struct {
	store  persistence.TaskStore
	runner Runner
	logger *zap.Logger

	// cancelFlags holds one independent flag per task, even within the
	// same batch submission — spec's resolved Open Question: batch
	// cancellation is per-task, never shared.
	cancelFlags sync.Map // taskID -> *atomic.Bool

	maxRunningHours int // zombie reclamation threshold, clamped [1,72]
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithMaxRunningHours bounds the zombie-reclamation threshold to [1,72]
// hours.
func WithMaxRunningHours(hours int) Option {
	return func(m *Manager) {
		if hours < 1 {
			hours = 1
		}
		if hours > 72 {
			hours = 72
		}
		m.maxRunningHours = hours
	}
}

// NewManager builds a Manager over store, dispatching execution through
// runner.
func NewManager(store persistence.TaskStore, runner Runner, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{store: store, runner: runner, logger: logger.With(zap.String("component", "task_manager")), maxRunningHours: 24}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit validates req, creates a task record, and launches execution
// asynchronously, returning the new task ID immediately.
func (m *Manager) Submit(ctx context.Context, req AnalysisRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	task := &persistence.AsyncTask{
		ID:        uuid.NewString(),
		Type:      AnalysisTaskType,
		SessionID: req.UserID, // user scoping pushes down to the store's session filter
		Status:    persistence.TaskStatusPending,
		Input:     req.toInput(),
		Progress:  0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := m.store.SaveTask(ctx, task); err != nil {
		return "", fmt.Errorf("task manager: save task: %w", err)
	}

	flag := &atomic.Bool{}
	m.cancelFlags.Store(task.ID, flag)

	go m.run(task.ID, flag)

	return task.ID, nil
}

// SubmitBatch submits up to MaxBatchSize requests concurrently via
// errgroup, returning one task ID per request in input order (empty for a
// request that failed) and, if any request failed, an error wrapping the
// first failure in input order. One request's failure never prevents the
// other successful submissions from running.
func (m *Manager) SubmitBatch(ctx context.Context, reqs []AnalysisRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("task manager: batch is empty")
	}
	if len(reqs) > MaxBatchSize {
		return nil, fmt.Errorf("task manager: batch exceeds max size %d", MaxBatchSize)
	}

	ids := make([]string, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			id, err := m.Submit(gctx, req)
			ids[i] = id
			errs[i] = err
			return nil // collect per-item errors rather than aborting the batch
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return ids, fmt.Errorf("task manager: one or more submissions failed: %w", err)
		}
	}
	return ids, nil
}

func (m *Manager) run(taskID string, cancelled *atomic.Bool) {
	defer m.cancelFlags.Delete(taskID)

	ctx := context.Background()
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		m.logger.Error("failed to reload task before run", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	now := time.Now()
	task.Status = persistence.TaskStatusRunning
	task.StartedAt = &now
	if err := m.store.SaveTask(ctx, task); err != nil {
		m.logger.Warn("failed to mark task running", zap.String("task_id", taskID), zap.Error(err))
	}

	result, runErr := m.runner.RunAnalysis(ctx, task, cancelled.Load)

	completed := time.Now()
	if cancelled.Load() {
		_ = m.store.UpdateStatus(ctx, taskID, persistence.TaskStatusCancelled, nil, "")
		return
	}
	if runErr != nil {
		_ = m.store.UpdateStatus(ctx, taskID, persistence.TaskStatusFailed, nil, runErr.Error())
		return
	}

	task.CompletedAt = &completed
	if err := m.store.UpdateStatus(ctx, taskID, persistence.TaskStatusCompleted, result, ""); err != nil {
		m.logger.Warn("failed to persist completed task", zap.String("task_id", taskID), zap.Error(err))
	}
}

// Status returns the current status/progress for a task.
func (m *Manager) Status(ctx context.Context, taskID string) (*persistence.AsyncTask, error) {
	return m.store.GetTask(ctx, taskID)
}

// Result returns the task record whatever its status; its Result field is
// nil until the task completes.
func (m *Manager) Result(ctx context.Context, taskID string) (*persistence.AsyncTask, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Cancel flips the independent cancellation flag for taskID; the graph
// controller observes it between nodes, never mid-node.
func (m *Manager) Cancel(taskID string) bool {
	v, ok := m.cancelFlags.Load(taskID)
	if !ok {
		return false
	}
	v.(*atomic.Bool).Store(true)
	return true
}

// MarkFailed force-transitions a task to failed, e.g. via an operator
// action.
func (m *Manager) MarkFailed(ctx context.Context, taskID, reason string) error {
	return m.store.UpdateStatus(ctx, taskID, persistence.TaskStatusFailed, nil, reason)
}

// Delete removes a task record entirely.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	return m.store.DeleteTask(ctx, taskID)
}

// History returns tasks for a user, with filter push-down to the store.
func (m *Manager) History(ctx context.Context, userID string, f HistoryFilter, limit, offset int) ([]*persistence.AsyncTask, error) {
	filter := persistence.TaskFilter{
		Type: AnalysisTaskType, SessionID: userID,
		CreatedAfter: f.From, CreatedBefore: f.To,
		Limit: limit, Offset: offset, OrderBy: "created_at", OrderDesc: true,
	}
	if f.Status != "" {
		filter.Status = []persistence.TaskStatus{persistence.TaskStatus(f.Status)}
	}
	all, err := m.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	if f.Symbol == "" && f.Market == "" {
		return all, nil
	}
	// Symbol/market live inside the task input; the store has no index for
	// them, so they narrow the already user-and-date-scoped page.
	out := make([]*persistence.AsyncTask, 0, len(all))
	for _, t := range all {
		if f.Symbol != "" {
			if sym, _ := t.Input["symbol"].(string); sym != f.Symbol {
				continue
			}
		}
		if f.Market != "" {
			if mk, _ := t.Input["market"].(string); mk != f.Market {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// HistoryFilter narrows a user-history query. From/To bound created_at;
// Status matches one task status; Symbol/Market match the submission input.
type HistoryFilter struct {
	Status string
	Symbol string
	Market string
	From   *time.Time
	To     *time.Time
}

// ReclaimZombies marks running tasks that have exceeded maxRunningHours as
// failed with a reclamation marker (spec's zombie/stuck error kind).
func (m *Manager) ReclaimZombies(ctx context.Context) (int, error) {
	running, err := m.store.ListTasks(ctx, persistence.TaskFilter{
		Type: AnalysisTaskType, Status: []persistence.TaskStatus{persistence.TaskStatusRunning},
	})
	if err != nil {
		return 0, fmt.Errorf("task manager: list running tasks: %w", err)
	}

	cutoff := time.Duration(m.maxRunningHours) * time.Hour
	reclaimed := 0
	for _, t := range running {
		if t.StartedAt == nil || time.Since(*t.StartedAt) < cutoff {
			continue
		}
		if err := m.store.UpdateStatus(ctx, t.ID, persistence.TaskStatusFailed, nil, "reclaimed: exceeded max running duration"); err != nil {
			m.logger.Warn("failed to reclaim zombie task", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		if v, ok := m.cancelFlags.Load(t.ID); ok {
			v.(*atomic.Bool).Store(true)
		}
		reclaimed++
	}
	return reclaimed, nil
}
