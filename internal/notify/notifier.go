package notify

import (
	"context"
	"fmt"

	"github.com/wellywell/skborders/internal/types"
)

// Events the notifier should be subscribed to.
var Events = []types.EventType{
	types.OrderCreatedEvent,
	types.OrderReadyEvent,
	types.OrderFailedEvent,
}

type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Handle emails the order's answer address about the event.
func (n *Notifier) Handle(ctx context.Context, event types.Event) error {
	p := event.Payload
	if p.Email == "" {
		return nil
	}

	var subject, body string
	switch event.Type {
	case types.OrderCreatedEvent:
		subject = fmt.Sprintf("Заказ %d принят", p.OrderID)
		body = fmt.Sprintf("Заказ %d (%s) принят в работу.", p.OrderID, p.UUID)
	case types.OrderReadyEvent:
		subject = fmt.Sprintf("Заказ %d готов", p.OrderID)
		body = fmt.Sprintf("Результат по заказу %d (%s) получен.", p.OrderID, p.UUID)
	case types.OrderFailedEvent:
		subject = fmt.Sprintf("Заказ %d не выполнен", p.OrderID)
		body = fmt.Sprintf("Заказ %d (%s) не выполнен: %s", p.OrderID, p.UUID, p.Message)
	default:
		return nil
	}
	return n.sender.Send(ctx, p.Email, subject, body)
}
