package eventbus

import (
	"context"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/skborders/internal/types"
)

type Handler func(ctx context.Context, event types.Event) error

type Bus struct {
	mu       sync.RWMutex
	handlers map[types.EventType][]Handler
	all      []Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[types.EventType][]Handler)}
}

func (b *Bus) Subscribe(eventType types.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event after the
// type-specific handlers.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish runs the handlers of the event type one by one in registration
// order. Handler errors and panics are logged and never reach the caller.
func (b *Bus) Publish(ctx context.Context, event types.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.all))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := dispatch(ctx, h, event); err != nil {
			logger.WithFields(logger.Fields{
				"event":    event.Type,
				"order_id": event.Payload.OrderID,
				"handler":  i,
			}).Errorf("Event handler failed %s", err)
		}
	}
}

func dispatch(ctx context.Context, h Handler, event types.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}
