// Package taskqueue is the unit-of-work sink for replicated records that are not stored
// directly, such as analyst overrides.
package taskqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation codes understood by the forecast dispatcher
const (
	OpAnalystIntervention = 101
)

// Stages within an operation
const (
	StageInitial = 0
)

// ErrQueueClosed is returned when submitting to a closed queue
var ErrQueueClosed = errors.New("task queue is closed")

// Task is one unit of scheduled work. Times are epoch milliseconds.
type Task struct {
	ID            string `json:"id"`
	EventKey      string `json:"event_key"`
	ScheduledTime int64  `json:"scheduled_time"`
	SubmitTime    int64  `json:"submit_time"`
	SubmitterID   string `json:"submitter_id"`
	OpCode        int    `json:"op_code"`
	Stage         int    `json:"stage"`
	Payload       []byte `json:"payload,omitempty"`
}

// Submitter accepts tasks for asynchronous processing
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

// prepare fills in the task id and submit time when the caller left them empty
func prepare(task Task, now time.Time) Task {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.SubmitTime == 0 {
		task.SubmitTime = now.UnixMilli()
	}
	return task
}

// MemQueue is a FIFO task queue held in memory. Consumers take tasks with Drain.
type MemQueue struct {
	tasks  []Task
	mu     sync.Mutex
	closed bool
}

// NewMemQueue creates an empty queue
func NewMemQueue() *MemQueue {
	return &MemQueue{}
}

// Submit implements Submitter
func (q *MemQueue) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, prepare(task, time.Now()))
	return nil
}

// Drain removes and returns every queued task in submission order
func (q *MemQueue) Drain() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.tasks
	q.tasks = nil
	return out
}

// Len returns the number of queued tasks
func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further submissions
func (q *MemQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

var _ Submitter = (*MemQueue)(nil)
