package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/skborders/internal/db"
	"github.com/wellywell/skborders/internal/queue"
	"github.com/wellywell/skborders/internal/skb"
	"github.com/wellywell/skborders/internal/storage"
	"github.com/wellywell/skborders/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotReady         = errors.New("result not ready")
	ErrTerminal         = errors.New("order is in a terminal state")
	ErrInactive         = errors.New("order is not active")
	ErrAlreadySubmitted = errors.New("order already submitted")
	ErrNotSubmitted     = errors.New("order was not submitted")
)

type PartnerGateway interface {
	CreateOrder(ctx context.Context, kindCode string, meta skb.OrderMeta) (string, error)
	FetchResult(ctx context.Context, orderUUID uuid.UUID, format skb.Format) (*skb.Result, error)
	GetKinds(ctx context.Context) ([]skb.Kind, error)
}

type OrderStore interface {
	Get(ctx context.Context, id int) (*types.Order, error)
	Save(ctx context.Context, o *types.Order) error
	List(ctx context.Context, limit int, offset int) ([]types.Order, error)
	Update(ctx context.Context, id int, upd types.OrderUpdate, from ...types.State) error
	AddFile(ctx context.Context, f *types.OrderFile) error
	Files(ctx context.Context, orderID int) ([]types.OrderFile, error)
}

type KindStore interface {
	GetByCode(ctx context.Context, code string) (*types.OrderKind, error)
	List(ctx context.Context) ([]types.OrderKind, error)
	Upsert(ctx context.Context, kinds []types.OrderKind) error
}

type TaskScheduler interface {
	Register(kind types.TaskKind, policy queue.Policy, handler queue.Handler, onFailed queue.FailureHook)
	Enqueue(ctx context.Context, kind types.TaskKind, orderID int, delay time.Duration) (bool, error)
	Pending(ctx context.Context, kind types.TaskKind, orderID int) (*queue.Task, error)
}

type Publisher interface {
	Publish(ctx context.Context, event types.Event)
}

type Downstream interface {
	Deliver(ctx context.Context, d types.Delivery) error
}

type Config struct {
	PollInitialDelay time.Duration
	LinkTTL          time.Duration
	Submit           queue.Policy
	Poll             queue.Policy
	Finalize         queue.Policy
}

type Dependencies struct {
	Orders     OrderStore
	Kinds      KindStore
	Partner    PartnerGateway
	Objects    storage.ObjectStore
	Tasks      TaskScheduler
	Events     Publisher
	Downstream Downstream
}

// Orchestrator moves orders through
// CREATED → SUBMITTING → SUBMITTED → POLLING → READY → FINALIZING → DONE.
// It is the only writer of order state.
type Orchestrator struct {
	Dependencies
	cfg    Config
	tracer trace.Tracer
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = time.Hour
	}
	return &Orchestrator{
		Dependencies: deps,
		cfg:          cfg,
		tracer:       otel.Tracer("github.com/wellywell/skborders/internal/order"),
	}
}

// Register binds the workflow steps to the scheduler.
func (o *Orchestrator) Register() {
	o.Tasks.Register(types.SubmitTask, o.cfg.Submit, o.taskHandler(o.SubmitOrder), o.submitFailed)
	o.Tasks.Register(types.PollTask, o.cfg.Poll, o.taskHandler(o.PollResult), o.pollFailed)
	o.Tasks.Register(types.FinalizeTask, o.cfg.Finalize, o.taskHandler(o.Finalize), o.finalizeFailed)
}

func (o *Orchestrator) taskHandler(step func(ctx context.Context, orderID int) error) queue.Handler {
	return func(ctx context.Context, task *queue.Task) error {
		err := step(ctx, task.OrderID)
		if errors.Is(err, db.ErrOrderNotFound) {
			return queue.Permanent(err)
		}
		return err
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, orderID int) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int("order.id", orderID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotReady) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateOrder stores a new order and schedules its submission.
func (o *Orchestrator) CreateOrder(ctx context.Context, in types.NewOrder) (*types.Order, error) {
	kind, err := o.Kinds.GetByCode(ctx, in.OrderKindCode)
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		UUID:            uuid.New(),
		PledgeID:        in.PledgeID,
		CadastralNumber: in.CadastralNumber,
		OrderKindID:     kind.ID,
		OrderKindCode:   kind.Code,
		AnswerEmail:     in.AnswerEmail,
		State:           types.CreatedState,
		IsActive:        true,
	}
	if err := o.Orders.Save(ctx, order); err != nil {
		return nil, err
	}
	logger.WithFields(logger.Fields{"order_id": order.ID, "uuid": order.UUID}).Info("Order created")

	o.Events.Publish(ctx, types.NewOrderEvent(types.OrderCreatedEvent, order, ""))

	if err := o.scheduleSubmit(ctx, order); err != nil {
		// the order is stored; a manual resend can still schedule it
		logger.WithField("order_id", order.ID).Errorf("Failed to schedule submit %s", err)
	}
	return order, nil
}

// ResubmitOrder schedules submission of an active order that has not reached
// the partner yet. A submitted order whose first poll was never scheduled gets
// its poll scheduled instead.
func (o *Orchestrator) ResubmitOrder(ctx context.Context, orderID int) (*types.Order, error) {
	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case order.State.Terminal():
		return nil, fmt.Errorf("order %d in %s: %w", order.ID, order.State, ErrTerminal)
	case !order.IsActive:
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrInactive)
	case order.IsSendRequestToSKB && order.State == types.SubmittedState:
		err = o.schedulePoll(ctx, order)
	case order.IsSendRequestToSKB:
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrAlreadySubmitted)
	default:
		err = o.scheduleSubmit(ctx, order)
	}
	if err != nil {
		return nil, err
	}
	return o.Orders.Get(ctx, orderID)
}

func (o *Orchestrator) scheduleSubmit(ctx context.Context, order *types.Order) error {
	if order.State.Terminal() {
		return ErrTerminal
	}
	if _, err := o.Tasks.Enqueue(ctx, types.SubmitTask, order.ID, 0); err != nil {
		return err
	}
	err := o.Orders.Update(ctx, order.ID, types.OrderUpdate{State: types.Ptr(types.SubmittingState)}, types.CreatedState)
	if err != nil && !errors.Is(err, db.ErrStaleOrder) {
		return err
	}
	if err == nil {
		order.State = types.SubmittingState
	}
	return nil
}

// SubmitOrder registers the order with the partner. Re-running it after a
// successful submission only makes sure the first poll is scheduled.
func (o *Orchestrator) SubmitOrder(ctx context.Context, orderID int) (err error) {
	ctx, span := o.startSpan(ctx, "order.submit", orderID)
	defer func() { endSpan(span, err) }()

	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	log := logger.WithFields(logger.Fields{"order_id": order.ID, "task": types.SubmitTask})

	if !order.IsActive || order.State.Terminal() {
		log.Infof("Order in %s, nothing to submit", order.State)
		return nil
	}
	if order.IsSendRequestToSKB {
		return o.schedulePoll(ctx, order)
	}

	if order.State == types.CreatedState {
		err := o.Orders.Update(ctx, order.ID, types.OrderUpdate{State: types.Ptr(types.SubmittingState)}, types.CreatedState)
		if err != nil && !errors.Is(err, db.ErrStaleOrder) {
			return err
		}
	}

	remoteID, err := o.Partner.CreateOrder(ctx, order.OrderKindCode, skb.OrderMeta{
		UUID:            order.UUID,
		CadastralNumber: order.CadastralNumber,
	})
	if err != nil {
		return fmt.Errorf("submit order %d: %w", order.ID, err)
	}

	err = o.Orders.Update(ctx, order.ID, types.OrderUpdate{
		State:              types.Ptr(types.SubmittedState),
		IsSendRequestToSKB: types.Ptr(true),
	}, types.SubmittingState)
	if err != nil {
		if errors.Is(err, db.ErrStaleOrder) {
			log.Info("Order already moved past submission")
			return nil
		}
		return err
	}
	order.State = types.SubmittedState
	order.IsSendRequestToSKB = true
	log.WithField("remote_id", remoteID).Info("Order submitted to partner")

	o.Events.Publish(ctx, types.NewOrderEvent(types.OrderSubmittedEvent, order, ""))

	return o.schedulePoll(ctx, order)
}

func (o *Orchestrator) schedulePoll(ctx context.Context, order *types.Order) error {
	if order.State != types.SubmittedState {
		return nil
	}
	if _, err := o.Tasks.Enqueue(ctx, types.PollTask, order.ID, o.cfg.PollInitialDelay); err != nil {
		return err
	}
	err := o.Orders.Update(ctx, order.ID, types.OrderUpdate{State: types.Ptr(types.PollingState)}, types.SubmittedState)
	if err != nil && !errors.Is(err, db.ErrStaleOrder) {
		return err
	}
	return nil
}

// PollResult checks both result formats and captures them once both are
// ready. It does nothing for an order whose result is already captured.
func (o *Orchestrator) PollResult(ctx context.Context, orderID int) (err error) {
	ctx, span := o.startSpan(ctx, "order.poll", orderID)
	defer func() { endSpan(span, err) }()

	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	log := logger.WithFields(logger.Fields{"order_id": order.ID, "task": types.PollTask})

	if !order.IsActive || order.ResponseData != nil {
		if order.State == types.ReadyState {
			return o.scheduleFinalize(ctx, order)
		}
		return nil
	}
	if order.State.Terminal() {
		return nil
	}
	if !order.IsSendRequestToSKB {
		return queue.Permanent(fmt.Errorf("order %d: %w", order.ID, ErrNotSubmitted))
	}
	if order.State == types.SubmittedState {
		err := o.Orders.Update(ctx, order.ID, types.OrderUpdate{State: types.Ptr(types.PollingState)}, types.SubmittedState)
		if err != nil && !errors.Is(err, db.ErrStaleOrder) {
			return err
		}
	}

	result, err := o.Partner.FetchResult(ctx, order.UUID, skb.FormatJSON)
	if err != nil {
		return fmt.Errorf("fetch json result: %w", err)
	}
	if !result.Ready {
		log.Info("JSON result not ready")
		return ErrNotReady
	}
	document, err := o.Partner.FetchResult(ctx, order.UUID, skb.FormatPDF)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	if !document.Ready {
		log.Info("Document not ready")
		return ErrNotReady
	}

	key := order.UUID.String()
	if err := o.Objects.PutDocument(ctx, key, document.Document, document.Filename, document.ContentType); err != nil {
		return err
	}
	err = o.Orders.AddFile(ctx, &types.OrderFile{
		OrderID:     order.ID,
		ObjectKey:   key,
		Filename:    document.Filename,
		ContentType: document.ContentType,
	})
	if err != nil {
		return err
	}

	err = o.Orders.Update(ctx, order.ID, types.OrderUpdate{
		State:        types.Ptr(types.ReadyState),
		IsActive:     types.Ptr(false),
		ResponseData: result.Payload,
	}, types.PollingState)
	if err != nil {
		if errors.Is(err, db.ErrStaleOrder) {
			log.Info("Result already captured")
			return nil
		}
		return err
	}
	order.State = types.ReadyState
	order.IsActive = false
	order.ResponseData = result.Payload
	log.Info("Result captured")

	o.Events.Publish(ctx, types.NewOrderEvent(types.OrderReadyEvent, order, ""))

	return o.scheduleFinalize(ctx, order)
}

func (o *Orchestrator) scheduleFinalize(ctx context.Context, order *types.Order) error {
	if _, err := o.Tasks.Enqueue(ctx, types.FinalizeTask, order.ID, 0); err != nil {
		return err
	}
	err := o.Orders.Update(ctx, order.ID, types.OrderUpdate{State: types.Ptr(types.FinalizingState)}, types.ReadyState)
	if err != nil && !errors.Is(err, db.ErrStaleOrder) {
		return err
	}
	return nil
}

// Finalize hands the captured result to the downstream system.
func (o *Orchestrator) Finalize(ctx context.Context, orderID int) (err error) {
	ctx, span := o.startSpan(ctx, "order.finalize", orderID)
	defer func() { endSpan(span, err) }()

	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State == types.DoneState || order.IsSendToGD {
		return nil
	}
	if order.ResponseData == nil {
		return queue.Permanent(fmt.Errorf("order %d has no result to deliver", order.ID))
	}

	delivery, err := o.delivery(ctx, order)
	if err != nil {
		return err
	}
	if err := o.Downstream.Deliver(ctx, *delivery); err != nil {
		return fmt.Errorf("deliver order %d: %w", order.ID, err)
	}

	err = o.Orders.Update(ctx, order.ID, types.OrderUpdate{
		State:      types.Ptr(types.DoneState),
		IsSendToGD: types.Ptr(true),
	}, types.ReadyState, types.FinalizingState)
	if err != nil && !errors.Is(err, db.ErrStaleOrder) {
		return err
	}
	order.State = types.DoneState
	order.IsSendToGD = true
	logger.WithField("order_id", order.ID).Info("Order delivered downstream")

	o.Events.Publish(ctx, types.NewOrderEvent(types.OrderDeliveredEvent, order, ""))
	return nil
}

func (o *Orchestrator) submitFailed(ctx context.Context, task *queue.Task, cause error) {
	o.markFailed(ctx, task.OrderID, types.FailedSubmitState, cause, types.CreatedState, types.SubmittingState)
}

func (o *Orchestrator) pollFailed(ctx context.Context, task *queue.Task, cause error) {
	o.markFailed(ctx, task.OrderID, types.FailedPollState, cause, types.PollingState)
}

func (o *Orchestrator) markFailed(ctx context.Context, orderID int, state types.State, cause error, from ...types.State) {
	log := logger.WithFields(logger.Fields{"order_id": orderID, "state": state})

	err := o.Orders.Update(ctx, orderID, types.OrderUpdate{
		State:  types.Ptr(state),
		Errors: types.Ptr(cause.Error()),
	}, from...)
	if errors.Is(err, db.ErrStaleOrder) {
		// the step got past its own state change and failed scheduling the next one
		o.recordStepError(ctx, orderID, cause)
		return
	}
	if err != nil {
		log.Errorf("Failed to mark order failed %s", err)
		return
	}
	log.Errorf("Order failed: %s", cause)

	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		log.Errorf("Failed to reload order %s", err)
		return
	}
	o.Events.Publish(ctx, types.NewOrderEvent(types.OrderFailedEvent, order, cause.Error()))
}

// recordStepError keeps the order in its current state with the failure in
// errors. A captured result whose delivery was never scheduled closes the
// order the same way an abandoned delivery does.
func (o *Orchestrator) recordStepError(ctx context.Context, orderID int, cause error) {
	log := logger.WithField("order_id", orderID)

	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		log.Errorf("Failed to reload order %s", err)
		return
	}
	if order.State.Terminal() {
		return
	}
	if order.State == types.ReadyState {
		if _, err := o.Tasks.Pending(ctx, types.FinalizeTask, orderID); errors.Is(err, queue.ErrTaskNotFound) {
			o.closeUndelivered(ctx, orderID, fmt.Errorf("delivery not scheduled: %w", cause))
			return
		}
	}

	err = o.Orders.Update(ctx, orderID, types.OrderUpdate{Errors: types.Ptr(cause.Error())}, order.State)
	if err != nil {
		log.Errorf("Failed to record order error %s", err)
		return
	}
	log.WithField("state", order.State).Errorf("Order step abandoned: %s", cause)
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, task *queue.Task, cause error) {
	o.closeUndelivered(ctx, task.OrderID, fmt.Errorf("downstream delivery failed: %w", cause))
}

// closeUndelivered never rolls back the captured result: the order is closed
// as DONE with the delivery error recorded.
func (o *Orchestrator) closeUndelivered(ctx context.Context, orderID int, cause error) {
	log := logger.WithField("order_id", orderID)

	err := o.Orders.Update(ctx, orderID, types.OrderUpdate{
		State:  types.Ptr(types.DoneState),
		Errors: types.Ptr(cause.Error()),
	}, types.ReadyState, types.FinalizingState)
	if err != nil {
		log.Errorf("Failed to close order after delivery failure %s", err)
		return
	}
	log.Errorf("Downstream delivery abandoned: %s", cause)
}
