package queue

import (
	"context"
	"sync"
	"time"
)

type MemoryQueue struct {
	mu       sync.Mutex
	tasks    map[string]Task
	inflight map[string]time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		tasks:    make(map[string]Task),
		inflight: make(map[string]time.Time),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.tasks[task.ID]; ok {
		return false, nil
	}
	q.tasks[task.ID] = *task
	return true, nil
}

func (q *MemoryQueue) Claim(ctx context.Context, now time.Time, lease time.Duration) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *Task
	for id, t := range q.tasks {
		if _, leased := q.inflight[id]; leased || t.EligibleAt.After(now) {
			continue
		}
		if next == nil || t.EligibleAt.Before(next.EligibleAt) {
			candidate := t
			next = &candidate
		}
	}
	if next == nil {
		return nil, ErrEmpty
	}
	q.inflight[next.ID] = now.Add(lease)
	return next, nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, task.ID)
	q.tasks[task.ID] = *task
	return nil
}

func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, id)
	delete(q.tasks, id)
	return nil
}

func (q *MemoryQueue) Reap(ctx context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for id, deadline := range q.inflight {
		if deadline.After(now) {
			continue
		}
		delete(q.inflight, id)
		if t, ok := q.tasks[id]; ok {
			t.EligibleAt = now
			t.Attempt++
			t.LastError = leaseExpired
			q.tasks[id] = t
		}
		n++
	}
	return n, nil
}

func (q *MemoryQueue) Get(ctx context.Context, id string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &t, nil
}

func (q *MemoryQueue) Ping(ctx context.Context) error {
	return nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
