package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrStopped is delivered for tasks that were still queued at shutdown.
var ErrStopped = errors.New("ingestion manager stopped")

// Config sizes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

type job struct {
	task Task
	done chan Result
}

// Manager runs ingestion tasks on a fixed pool of workers fed by a
// buffered queue.
type Manager struct {
	pipeline *Pipeline
	log      *zap.Logger
	metrics  *Metrics
	workers  int

	queue   chan job
	stopped chan struct{}

	mu       sync.Mutex
	started  bool
	closed   bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	spilling sync.WaitGroup
}

// NewManager creates a new ingestion manager. Call Start to run workers.
func NewManager(p *Pipeline, cfg Config, log *zap.Logger) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		pipeline: p,
		log:      log,
		metrics:  p.metrics,
		workers:  cfg.Workers,
		queue:    make(chan job, cfg.QueueSize),
		stopped:  make(chan struct{}),
	}
}

// Start launches the workers. Runs do not inherit ctx cancellation; use
// Shutdown to stop the pool.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < m.workers; i++ {
		id := i
		m.group.Go(func() error {
			return m.worker(ctx, id)
		})
	}
	m.log.Info("ingestion workers started", zap.Int("workers", m.workers), zap.Int("queue_size", cap(m.queue)))
}

// Submit queues task and returns a channel that receives its Result once.
// It never blocks: when the queue is full a goroutine waits for space.
func (m *Manager) Submit(task Task) <-chan Result {
	j := job{task: task, done: make(chan Result, 1)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		j.done <- Result{FileID: task.FileID, Err: ErrStopped}
		close(j.done)
		return j.done
	}
	m.spilling.Add(1)
	m.mu.Unlock()

	select {
	case m.queue <- j:
		m.spilling.Done()
		m.metrics.QueueDepth.Inc()
	default:
		m.log.Warn("ingestion queue full, deferring task", zap.String("file_id", task.FileID))
		go func() {
			defer m.spilling.Done()
			select {
			case m.queue <- j:
				m.metrics.QueueDepth.Inc()
			case <-m.stopped:
				j.done <- Result{FileID: task.FileID, Err: ErrStopped}
				close(j.done)
			}
		}()
	}
	return j.done
}

func (m *Manager) worker(ctx context.Context, id int) error {
	log := m.log.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case j := <-m.queue:
			m.metrics.QueueDepth.Dec()
			j.done <- m.run(ctx, log, j.task)
			close(j.done)
		}
	}
}

// run executes one task detached from cancellation, recovering panics so a
// bad run cannot take the worker down.
func (m *Manager) run(ctx context.Context, log *zap.Logger, task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("ingestion run panicked", zap.String("file_id", task.FileID), zap.Any("panic", r))
			res = Result{FileID: task.FileID, Err: fmt.Errorf("ingestion panicked: %v", r)}
		}
	}()
	return m.pipeline.Run(context.WithoutCancel(ctx), task)
}

// Shutdown stops accepting tasks, lets workers finish their current run
// and fails every task still queued with ErrStopped. Those files stay
// pending.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stopped)
	cancel, group := m.cancel, m.group
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan error, 1)
	go func() {
		m.spilling.Wait()
		if group != nil {
			done <- group.Wait()
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		m.drain()
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for ingestion workers: %w", ctx.Err())
	}
}

func (m *Manager) drain() {
	for {
		select {
		case j := <-m.queue:
			m.metrics.QueueDepth.Dec()
			m.log.Warn("dropping queued ingestion task at shutdown", zap.String("file_id", j.task.FileID))
			j.done <- Result{FileID: j.task.FileID, Err: ErrStopped}
			close(j.done)
		default:
			return
		}
	}
}
