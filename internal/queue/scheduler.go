package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/skborders/internal/types"
	"golang.org/x/sync/errgroup"
)

type Handler func(ctx context.Context, task *Task) error

// FailureHook runs once when a task is abandoned, either on a permanent error
// or after its last attempt.
type FailureHook func(ctx context.Context, task *Task, err error)

type binding struct {
	handler  Handler
	policy   Policy
	onFailed FailureHook
}

type Options struct {
	Workers      int
	PollInterval time.Duration
	Lease        time.Duration
	Timeout      time.Duration
}

type Scheduler struct {
	queue    Queue
	bindings map[types.TaskKind]binding
	opts     Options
	now      func() time.Time
}

func NewScheduler(q Queue, opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Minute
	}
	return &Scheduler{
		queue:    q,
		bindings: make(map[types.TaskKind]binding),
		opts:     opts,
		now:      time.Now,
	}
}

// Register binds a handler and its retry policy to a task kind. It must be
// called before Run.
func (s *Scheduler) Register(kind types.TaskKind, policy Policy, handler Handler, onFailed FailureHook) {
	s.bindings[kind] = binding{handler: handler, policy: policy, onFailed: onFailed}
}

// Enqueue schedules a task of the given kind for the order after delay. It
// reports false if the same task is already pending or running.
func (s *Scheduler) Enqueue(ctx context.Context, kind types.TaskKind, orderID int, delay time.Duration) (bool, error) {
	b, ok := s.bindings[kind]
	if !ok {
		return false, fmt.Errorf("no handler registered for %s", kind)
	}
	now := s.now()
	task := NewTask(kind, orderID, b.policy, now)
	task.EligibleAt = now.Add(delay)

	added, err := s.queue.Enqueue(ctx, task)
	if err != nil {
		return false, err
	}
	logger.WithFields(logger.Fields{
		"task":     task.ID,
		"eligible": task.EligibleAt,
		"added":    added,
	}).Debug("Enqueued task")
	return added, nil
}

func (s *Scheduler) Pending(ctx context.Context, kind types.TaskKind, orderID int) (*Task, error) {
	return s.queue.Get(ctx, TaskID(kind, orderID))
}

// Run starts the workers and the lease reaper and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.opts.Workers; i++ {
		worker := i
		g.Go(func() error {
			s.work(ctx, worker)
			return nil
		})
	}
	g.Go(func() error {
		s.reap(ctx)
		return nil
	})
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context, worker int) {
	for {
		processed, err := s.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			logger.WithField("worker", worker).Errorf("Error processing task %s", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *Scheduler) reap(ctx context.Context) {
	interval := s.opts.Lease / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.queue.Reap(ctx, s.now())
			if err != nil {
				logger.Errorf("Error reaping leases %s", err)
				continue
			}
			if n > 0 {
				logger.WithField("tasks", n).Warn("Redelivering tasks with expired lease")
			}
		}
	}
}

// ProcessNext claims and runs at most one eligible task. It reports whether a
// task was claimed.
func (s *Scheduler) ProcessNext(ctx context.Context) (bool, error) {
	task, err := s.queue.Claim(ctx, s.now(), s.opts.Lease)
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return false, nil
		}
		return false, err
	}

	log := logger.WithFields(logger.Fields{
		"task":     task.ID,
		"order_id": task.OrderID,
		"attempt":  task.Attempt + 1,
	})

	b, ok := s.bindings[task.Kind]
	if !ok {
		log.Error("No handler registered, dropping task")
		return true, s.queue.Ack(ctx, task.ID)
	}

	// leases that expired while running count as attempts
	if task.MaxAttempts > 0 && task.Attempt >= task.MaxAttempts {
		log.Errorf("Task abandoned after %d attempts: %s", task.Attempt, task.LastError)
		return true, s.abandon(ctx, b, task, fmt.Errorf("%w: %s", ErrExhausted, task.LastError))
	}

	err = s.execute(ctx, b.handler, task)
	if err == nil {
		log.Debug("Task done")
		return true, s.queue.Ack(ctx, task.ID)
	}

	task.Attempt++
	task.LastError = err.Error()

	if IsPermanent(err) {
		log.Errorf("Task failed permanently %s", err)
		return true, s.abandon(ctx, b, task, err)
	}
	if task.Attempt >= task.MaxAttempts {
		log.Errorf("Task abandoned after %d attempts: %s", task.Attempt, err)
		return true, s.abandon(ctx, b, task, fmt.Errorf("%w: %w", ErrExhausted, err))
	}

	delay := task.Policy.Delay(task.Attempt)
	if after, ok := RetryAfter(err); ok && after > delay {
		delay = after
	}
	task.EligibleAt = s.now().Add(delay)

	log.WithField("retry_in", delay.String()).Infof("Task will be retried: %s", err)
	return true, s.queue.Requeue(ctx, task)
}

func (s *Scheduler) abandon(ctx context.Context, b binding, task *Task, err error) error {
	if ackErr := s.queue.Ack(ctx, task.ID); ackErr != nil {
		return ackErr
	}
	if b.onFailed != nil {
		b.onFailed(ctx, task, err)
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, handler Handler, task *Task) (err error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, task)
}
