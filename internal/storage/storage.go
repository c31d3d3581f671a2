package storage

import (
	"context"
	"errors"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Key         string
	Filename    string
	ContentType string
	Data        []byte
}

// ObjectStore keeps result documents keyed by the order's correlation UUID.
type ObjectStore interface {
	PutDocument(ctx context.Context, key string, data []byte, filename string, contentType string) error
	GetDocument(ctx context.Context, key string) (*Object, error)
	Link(ctx context.Context, key string, ttl time.Duration) (string, error)
}
