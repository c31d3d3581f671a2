package types

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type State string

var ErrInvalidTransition = errors.New("state transition not allowed")

const (
	CreatedState      State = "CREATED"
	SubmittingState   State = "SUBMITTING"
	SubmittedState    State = "SUBMITTED"
	PollingState      State = "POLLING"
	ReadyState        State = "READY"
	FinalizingState   State = "FINALIZING"
	DoneState         State = "DONE"
	FailedSubmitState State = "FAILED_SUBMIT"
	FailedPollState   State = "FAILED_POLL"
)

var states = []State{
	CreatedState, SubmittingState, SubmittedState, PollingState, ReadyState,
	FinalizingState, DoneState, FailedSubmitState, FailedPollState,
}

// READY → DONE closes an order whose delivery could not be scheduled.
var transitions = map[State][]State{
	CreatedState:    {SubmittingState, FailedSubmitState},
	SubmittingState: {SubmittedState, FailedSubmitState},
	SubmittedState:  {PollingState},
	PollingState:    {ReadyState, FailedPollState},
	ReadyState:      {FinalizingState, DoneState},
	FinalizingState: {DoneState},
}

// Terminal states accept no further tasks.
func (s State) Terminal() bool {
	return s == DoneState || s == FailedSubmitState || s == FailedPollState
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources returns the states that may move to `to`. When from is given only
// those of them are considered, in the given order.
func Sources(to State, from ...State) []State {
	if len(from) == 0 {
		from = states
	}
	res := make([]State, 0, len(from))
	for _, s := range from {
		if s.CanTransition(to) {
			res = append(res, s)
		}
	}
	return res
}

type Order struct {
	ID                 int             `json:"id"`
	UUID               uuid.UUID       `json:"uuid"`
	PledgeID           *int64          `json:"pledgeId,omitempty"`
	CadastralNumber    string          `json:"cadastralNumber"`
	OrderKindID        int             `json:"orderKindId"`
	OrderKindCode      string          `json:"orderKindCode"`
	AnswerEmail        string          `json:"answerEmail"`
	State              State           `json:"state"`
	IsActive           bool            `json:"isActive"`
	IsSendToGD         bool            `json:"isSendToGd"`
	IsSendRequestToSKB bool            `json:"isSendRequestToSkb"`
	ResponseData       json.RawMessage `json:"responseData"`
	Errors             *string         `json:"errors"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// OrderUpdate is a partial update: only non-nil fields are written.
type OrderUpdate struct {
	State              *State
	IsActive           *bool
	IsSendToGD         *bool
	IsSendRequestToSKB *bool
	ResponseData       json.RawMessage
	Errors             *string
}

func (u OrderUpdate) Empty() bool {
	return u.State == nil && u.IsActive == nil && u.IsSendToGD == nil &&
		u.IsSendRequestToSKB == nil && u.ResponseData == nil && u.Errors == nil
}

// Apply copies the set fields of u onto o.
func (u OrderUpdate) Apply(o *Order) {
	if u.State != nil {
		o.State = *u.State
	}
	if u.IsActive != nil {
		o.IsActive = *u.IsActive
	}
	if u.IsSendToGD != nil {
		o.IsSendToGD = *u.IsSendToGD
	}
	if u.IsSendRequestToSKB != nil {
		o.IsSendRequestToSKB = *u.IsSendRequestToSKB
	}
	if u.ResponseData != nil {
		o.ResponseData = u.ResponseData
	}
	if u.Errors != nil {
		o.Errors = u.Errors
	}
}

type OrderKind struct {
	ID        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type OrderFile struct {
	ID          int       `json:"id"`
	OrderID     int       `json:"orderId"`
	ObjectKey   string    `json:"objectKey"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewOrder is what a client submits to create an order.
type NewOrder struct {
	PledgeID        *int64 `json:"pledgeId"`
	CadastralNumber string `json:"cadastralNumber"`
	OrderKindCode   string `json:"orderKindCode"`
	AnswerEmail     string `json:"answerEmail"`
}

func Ptr[T any](v T) *T {
	return &v
}
