package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// Runner runs one sync. *Synchronizer implements it.
type Runner interface {
	Run(ctx context.Context, ownerID string, creds types.Credentials) (*types.SyncResult, error)
}

// Job is one queued sync.
type Job struct {
	OwnerID     string
	Credentials types.Credentials
}

// Dispatcher runs sync jobs on a fixed pool of workers. Jobs run detached
// from the request that queued them, each under its own timeout.
type Dispatcher struct {
	runner  Runner
	jobs    chan Job
	workers int
	timeout time.Duration
	logger  *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu      gosync.Mutex
	started bool
	closed  bool
}

// NewDispatcher creates a dispatcher with the given pool and queue size.
func NewDispatcher(runner Runner, workers, queue int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:  runner,
		jobs:    make(chan Job, queue),
		workers: workers,
		timeout: timeout,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it again is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx := d.base
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(d.base, d.timeout)
		defer cancel()
	}
	// Run logs its own failures; nobody awaits the result.
	if _, err := d.runner.Run(ctx, job.OwnerID, job.Credentials); err != nil {
		d.logger.Debug("background sync ended with error", "owner", job.OwnerID, "error", err)
	}
}

// Submit queues job without blocking. It returns false when the queue is
// full or the dispatcher has shut down.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		d.logger.Warn("sync queue full, dropping job", "owner", job.OwnerID)
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When
// ctx ends first, in-flight jobs are cancelled and ctx.Err is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
