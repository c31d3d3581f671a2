package db

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrFileNotFound  = errors.New("order file not found")
	// ErrStaleOrder is returned when a conditional update matched no row:
	// the order moved to another state in between.
	ErrStaleOrder = errors.New("order state changed concurrently")
)

type OrderKindNotFoundError struct {
	Code string
}

func (e *OrderKindNotFoundError) Error() string {
	return fmt.Sprintf("Order kind %s not found", e.Code)
}

type OrderExistsError struct {
	UUID string
}

func (e *OrderExistsError) Error() string {
	return fmt.Sprintf("Order %s already exists", e.UUID)
}
