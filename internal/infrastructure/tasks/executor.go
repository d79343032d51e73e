// Package tasks runs fire-and-forget background work for the engagement
// engine. Reward credits, rank bonuses, and notifications are scheduled as
// tasks so the synchronous write path never waits on side effects.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrExecutorClosed is returned when a task is submitted after Close.
	ErrExecutorClosed = errors.New("tasks: executor is closed")

	// ErrTaskPanic wraps a panic recovered from a task body.
	ErrTaskPanic = errors.New("tasks: task panicked")

	// ErrNilTask is returned when a task has no run function.
	ErrNilTask = errors.New("tasks: task run function cannot be nil")
)

// Task is a unit of background work. Kind labels the work for logs and
// counters; ID makes individual executions traceable.
type Task struct {
	ID   string
	Kind string
	Run  func(ctx context.Context) error
}

// NewTask builds a task with a generated identifier.
func NewTask(kind string, run func(ctx context.Context) error) Task {
	return Task{
		ID:   uuid.NewString(),
		Kind: kind,
		Run:  run,
	}
}

// Executor schedules tasks outside the caller's request path. A non-nil
// error from Submit means the task was not accepted; failures inside an
// accepted task are reported through logs and counters, never to the
// submitter.
type Executor interface {
	Submit(ctx context.Context, task Task) error
	Close(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// POOL EXECUTOR
// ══════════════════════════════════════════════════════════════════════════════

// Pool executes tasks on a bounded set of concurrent workers. Submit never
// blocks: each task gets a goroutine that waits for a worker slot, so bursts
// queue in the scheduler rather than in the caller. Tasks still waiting for
// a slot when Close is called are dropped and counted.
type Pool struct {
	mu         sync.RWMutex
	workerPool chan struct{}
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	closed     bool
	closeCh    chan struct{}
	wg         sync.WaitGroup
}

// PoolConfig contains configuration for Pool.
type PoolConfig struct {
	// Workers is the number of tasks allowed to run concurrently.
	Workers int

	// TaskTimeout bounds the execution time of a single task.
	// Zero means no limit.
	TaskTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// EnableMetrics enables execution counters.
	EnableMetrics bool
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:       10,
		TaskTimeout:   30 * time.Second,
		EnableMetrics: true,
	}
}

// NewPool creates a new pool executor.
func NewPool(config PoolConfig) *Pool {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Workers <= 0 {
		config.Workers = 10
	}

	pool := &Pool{
		workerPool: make(chan struct{}, config.Workers),
		timeout:    config.TaskTimeout,
		logger:     config.Logger,
		closeCh:    make(chan struct{}),
	}

	if config.EnableMetrics {
		pool.metrics = NewMetrics()
	}

	return pool
}

// Submit accepts a task for background execution. The context only guards
// submission; the task itself runs under the pool's own timeout.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return ErrNilTask
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrExecutorClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if p.metrics != nil {
		p.metrics.RecordSubmit(task.Kind)
	}

	go p.execute(task)

	return nil
}

// execute waits for a worker slot, then runs the task.
func (p *Pool) execute(task Task) {
	defer p.wg.Done()

	select {
	case p.workerPool <- struct{}{}:
		defer func() { <-p.workerPool }()
	case <-p.closeCh:
		if p.metrics != nil {
			p.metrics.RecordDrop(task.Kind)
		}
		p.logger.Debug("task dropped on shutdown",
			"task_kind", task.Kind,
			"task_id", task.ID,
		)
		return
	}

	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.run(ctx, task)
	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordExecution(task.Kind, duration, err == nil)
	}

	if err != nil {
		p.logger.Error("task failed",
			"task_kind", task.Kind,
			"task_id", task.ID,
			"duration", duration,
			"error", err,
		)
	}
}

// run invokes the task body, converting panics into errors so a bad task
// cannot take down the worker.
func (p *Pool) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return task.Run(ctx)
}

// Close stops accepting tasks and waits for in-flight tasks to finish.
// The context bounds the drain; on expiry remaining tasks keep running
// detached and Close returns the context error.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("task pool closed")
		return nil
	case <-ctx.Done():
		p.logger.Warn("task pool close abandoned drain", "error", ctx.Err())
		return ctx.Err()
	}
}

// Metrics returns the pool's counters, or nil when disabled.
func (p *Pool) Metrics() *Metrics {
	return p.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// INLINE EXECUTOR
// ══════════════════════════════════════════════════════════════════════════════

// Inline runs tasks synchronously on the submitting goroutine. One-shot
// commands and tests use it so side effects complete in submission order.
type Inline struct {
	logger *slog.Logger
}

// NewInline creates an inline executor.
func NewInline(logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{logger: logger}
}

// Submit runs the task before returning. Task failures are logged, not
// returned, to keep submission semantics identical to Pool.
func (e *Inline) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return ErrNilTask
	}

	if err := task.Run(ctx); err != nil {
		e.logger.Error("task failed",
			"task_kind", task.Kind,
			"task_id", task.ID,
			"error", err,
		)
	}

	return nil
}

// Close is a no-op for the inline executor.
func (e *Inline) Close(ctx context.Context) error {
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks task execution counters.
type Metrics struct {
	mu sync.RWMutex

	SubmittedByKind map[string]int64
	Executed        int64
	Failed          int64
	Dropped         int64
	TotalDuration   time.Duration
}

// NewMetrics creates a new counter set.
func NewMetrics() *Metrics {
	return &Metrics{
		SubmittedByKind: make(map[string]int64),
	}
}

// RecordSubmit records an accepted task.
func (m *Metrics) RecordSubmit(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SubmittedByKind[kind]++
}

// RecordExecution records a completed task run.
func (m *Metrics) RecordExecution(kind string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Executed++
	m.TotalDuration += duration
	if !success {
		m.Failed++
	}
}

// RecordDrop records a task abandoned before execution.
func (m *Metrics) RecordDrop(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Dropped++
}

// Snapshot returns a copy of current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var submitted int64
	for _, v := range m.SubmittedByKind {
		submitted += v
	}

	avg := time.Duration(0)
	if m.Executed > 0 {
		avg = m.TotalDuration / time.Duration(m.Executed)
	}

	return MetricsSnapshot{
		Submitted:       submitted,
		Executed:        m.Executed,
		Failed:          m.Failed,
		Dropped:         m.Dropped,
		AverageDuration: avg,
	}
}

// MetricsSnapshot is a point-in-time copy of task counters.
type MetricsSnapshot struct {
	Submitted       int64
	Executed        int64
	Failed          int64
	Dropped         int64
	AverageDuration time.Duration
}
