package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

// Task is one product page waiting for extraction.
type Task struct {
	ID        string
	URL       string
	Priority  int
	Attempts  int
	CreatedAt time.Time
}

func NewTask(rawURL string, priority int) *Task {
	return &Task{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close()
}

// InMemoryQueue hands out the highest priority task first; equal priorities
// keep insertion order.
type InMemoryQueue struct {
	tasks    []*Task
	capacity int
	mu       sync.Mutex
	notify   chan struct{}
	closed   bool
}

// NewInMemoryQueue creates a queue. capacity <= 0 means unbounded.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	return &InMemoryQueue{
		tasks:    make([]*Task, 0),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.capacity > 0 && len(q.tasks) >= q.capacity {
		return ErrQueueFull
	}

	q.tasks = append(q.tasks, task)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})

	q.signal()
	return nil
}

// Pop blocks until a task is available, the queue is closed and drained,
// or ctx is done.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			if len(q.tasks) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Requeue puts a failed task back with its attempt counter bumped.
func (q *InMemoryQueue) Requeue(task *Task) error {
	task.Attempts++
	return q.Push(task)
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops new pushes. Tasks already queued can still be popped.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.notify)
	}
}

// signal must be called with mu held.
func (q *InMemoryQueue) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// BatchQueue groups popped tasks so callers can process them in chunks.
type BatchQueue struct {
	*InMemoryQueue
	batchSize int
}

func NewBatchQueue(batchSize, capacity int) *BatchQueue {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchQueue{
		InMemoryQueue: NewInMemoryQueue(capacity),
		batchSize:     batchSize,
	}
}

// PopBatch waits for at least one task and then takes up to batchSize
// without blocking further.
func (b *BatchQueue) PopBatch(ctx context.Context) ([]*Task, error) {
	first, err := b.Pop(ctx)
	if err != nil {
		return nil, err
	}

	batch := []*Task{first}

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(batch) < b.batchSize && len(b.tasks) > 0 {
		batch = append(batch, b.tasks[0])
		b.tasks = b.tasks[1:]
	}
	return batch, nil
}
