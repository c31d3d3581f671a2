package queue

import (
	"context"
	"time"
)

// Queue stores tasks until they are eligible and leases them to workers.
// A claimed task stays invisible until Ack, Requeue or lease expiry.
type Queue interface {
	// Enqueue stores task, eligible at task.EligibleAt. It reports false when a
	// task with the same ID is already queued or leased.
	Enqueue(ctx context.Context, task *Task) (bool, error)
	// Claim leases the earliest eligible task until now+lease. ErrEmpty when none.
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*Task, error)
	// Requeue replaces a leased task and makes it eligible at task.EligibleAt.
	Requeue(ctx context.Context, task *Task) error
	Ack(ctx context.Context, id string) error
	// Reap returns tasks with an expired lease to the ready set, counting
	// the lost run as an attempt.
	Reap(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, id string) (*Task, error)
	Ping(ctx context.Context) error
}
