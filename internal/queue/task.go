package queue

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wellywell/skborders/internal/types"
)

var (
	ErrEmpty        = errors.New("no eligible task")
	ErrExhausted    = errors.New("attempts exhausted")
	ErrTaskNotFound = errors.New("task not found")
)

const leaseExpired = "lease expired"

type Backoff string

const (
	Fixed       Backoff = "fixed"
	Exponential Backoff = "exponential"
)

type Policy struct {
	MaxAttempts int           `json:"maxAttempts"`
	Backoff     Backoff       `json:"backoff"`
	BaseDelay   time.Duration `json:"baseDelay"`
	MaxDelay    time.Duration `json:"maxDelay"`
}

// Delay returns the wait before the next run after the given failed attempt
// (1-based). The result never decreases with attempt and never exceeds MaxDelay
// when MaxDelay is set.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	if p.Backoff == Exponential && delay > 0 {
		for i := 1; i < attempt; i++ {
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
			if delay > math.MaxInt64/2 {
				break
			}
			delay <<= 1
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

type Task struct {
	ID          string         `json:"id"`
	Kind        types.TaskKind `json:"kind"`
	OrderID     int            `json:"orderId"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"maxAttempts"`
	Policy      Policy         `json:"policy"`
	EligibleAt  time.Time      `json:"eligibleAt"`
	LastError   string         `json:"lastError,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TaskID is the task identity: at most one task per kind and order is queued
// or running at any time.
func TaskID(kind types.TaskKind, orderID int) string {
	return fmt.Sprintf("%s:%d", kind, orderID)
}

func NewTask(kind types.TaskKind, orderID int, policy Policy, now time.Time) *Task {
	return &Task{
		ID:          TaskID(kind, orderID),
		Kind:        kind,
		OrderID:     orderID,
		MaxAttempts: policy.MaxAttempts,
		Policy:      policy,
		EligibleAt:  now,
		CreatedAt:   now,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Permanent() bool { return true }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

// RetryAfter reports the minimum delay requested by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var r interface{ RetryAfter() time.Duration }
	if errors.As(err, &r) {
		return r.RetryAfter(), true
	}
	return 0, false
}
