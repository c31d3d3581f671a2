package db

import "context"

// Store is the per-entity persistence contract.
type Store[T any] interface {
	Get(ctx context.Context, id int) (*T, error)
	Save(ctx context.Context, item *T) error
	Delete(ctx context.Context, id int) error
}
