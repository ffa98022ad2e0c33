package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/logging"
)

// Handler processes one task
type Handler func(ctx context.Context, task Task) error

// Dispatcher runs submitted tasks on a fixed pool of goroutines, each no earlier
// than its scheduled time. Intake is unbounded so Submit never waits on a busy pool.
type Dispatcher struct {
	workers int
	handler Handler
	logger  logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	ready   *sync.Cond
	pending []Task
	closed  bool
}

// NewDispatcher starts workers goroutines feeding tasks to handler
func NewDispatcher(workers int, handler Handler, logger logging.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		workers: workers,
		handler: handler,
		logger:  logging.OrDefault(logger).With(logging.Component("taskqueue")),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.ready = sync.NewCond(&d.mu)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// next blocks until a task is pending. It returns false once the dispatcher is
// closed and drained.
func (d *Dispatcher) next() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.pending) == 0 && !d.closed {
		d.ready.Wait()
	}
	if len(d.pending) == 0 {
		return Task{}, false
	}
	task := d.pending[0]
	d.pending[0] = Task{}
	d.pending = d.pending[1:]
	return task, true
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		task, ok := d.next()
		if !ok {
			return
		}
		if wait := time.Until(time.UnixMilli(task.ScheduledTime)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-d.ctx.Done():
				timer.Stop()
				continue
			}
		}
		d.run(task)
	}
}

// Pending returns the number of tasks not yet picked up by a worker
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// run calls the handler, turning a panic into a logged failure
func (d *Dispatcher) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked",
				logging.String("task_id", task.ID),
				logging.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := d.handler(d.ctx, task); err != nil {
		d.logger.Warn("task failed",
			logging.String("task_id", task.ID),
			logging.String("event_key", task.EventKey),
			logging.Int("op_code", task.OpCode),
			logging.Error(err))
	}
}

// Submit implements Submitter. It never blocks on the pool.
func (d *Dispatcher) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrQueueClosed
	}
	d.pending = append(d.pending, prepare(task, time.Now()))
	d.ready.Signal()
	return nil
}

// Close stops accepting tasks, abandons those still waiting for their scheduled
// time, and waits for running handlers to return. Tasks already due still run.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.ready.Broadcast()
		d.mu.Unlock()
		d.cancel()
	})
	d.wg.Wait()
}

var _ Submitter = (*Dispatcher)(nil)
