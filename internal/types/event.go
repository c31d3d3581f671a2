package types

import "github.com/google/uuid"

type EventType string

const (
	OrderCreatedEvent   EventType = "order_created"
	OrderSubmittedEvent EventType = "order_submitted"
	OrderReadyEvent     EventType = "order_ready"
	OrderFailedEvent    EventType = "order_failed"
	OrderDeliveredEvent EventType = "order_delivered"
)

type Event struct {
	Type    EventType    `json:"type"`
	Payload OrderPayload `json:"payload"`
}

type OrderPayload struct {
	OrderID int       `json:"orderId"`
	UUID    uuid.UUID `json:"uuid"`
	Email   string    `json:"email,omitempty"`
	State   State     `json:"state"`
	Message string    `json:"message,omitempty"`
}

func NewOrderEvent(t EventType, o *Order, message string) Event {
	return Event{
		Type: t,
		Payload: OrderPayload{
			OrderID: o.ID,
			UUID:    o.UUID,
			Email:   o.AnswerEmail,
			State:   o.State,
			Message: message,
		},
	}
}
