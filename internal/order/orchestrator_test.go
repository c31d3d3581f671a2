package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wellywell/skborders/internal/db"
	"github.com/wellywell/skborders/internal/order/mocks"
	"github.com/wellywell/skborders/internal/queue"
	"github.com/wellywell/skborders/internal/skb"
	"github.com/wellywell/skborders/internal/storage"
	"github.com/wellywell/skborders/internal/types"
)

type testEnv struct {
	orc        *Orchestrator
	orders     *memOrders
	kinds      *memKinds
	partner    *mocks.PartnerGateway
	objects    *storage.MemoryStore
	queue      *queue.MemoryQueue
	scheduler  *queue.Scheduler
	events     *recorder
	downstream *fakeDownstream
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithTasks(t, func(s *queue.Scheduler) TaskScheduler { return s })
}

func newTestEnvWithTasks(t *testing.T, tasks func(*queue.Scheduler) TaskScheduler) *testEnv {
	env := &testEnv{
		orders:     newMemOrders(),
		kinds:      newMemKinds("K1"),
		partner:    mocks.NewPartnerGateway(t),
		objects:    storage.NewMemoryStore(),
		queue:      queue.NewMemoryQueue(),
		events:     &recorder{},
		downstream: &fakeDownstream{},
	}
	env.scheduler = queue.NewScheduler(env.queue, queue.Options{Workers: 1})
	env.orc = NewOrchestrator(Dependencies{
		Orders:     env.orders,
		Kinds:      env.kinds,
		Partner:    env.partner,
		Objects:    env.objects,
		Tasks:      tasks(env.scheduler),
		Events:     env.events,
		Downstream: env.downstream,
	}, Config{
		Submit:   queue.Policy{MaxAttempts: 3, Backoff: queue.Fixed},
		Poll:     queue.Policy{MaxAttempts: 3, Backoff: queue.Exponential},
		Finalize: queue.Policy{MaxAttempts: 2, Backoff: queue.Exponential},
	})
	env.orc.Register()
	return env
}

// drain runs tasks until the queue has nothing eligible. All delays in the
// test policies are zero, so every retry is immediately eligible.
func (env *testEnv) drain(t *testing.T) {
	for i := 0; i < 100; i++ {
		processed, err := env.scheduler.ProcessNext(context.Background())
		require.NoError(t, err)
		if !processed {
			return
		}
	}
	t.Fatal("queue did not drain")
}

func newOrderRequest() types.NewOrder {
	return types.NewOrder{
		CadastralNumber: "77:01:0004042:1234",
		OrderKindCode:   "K1",
		AnswerEmail:     "client@example.com",
	}
}

var (
	readyJSON     = &skb.Result{Ready: true, Payload: json.RawMessage(`{"Result":"ok"}`), ContentType: "application/json"}
	readyDocument = &skb.Result{Ready: true, Document: []byte("%PDF-1.4"), Filename: "extract.pdf", ContentType: "application/pdf"}
	notReady      = &skb.Result{Ready: false}
)

func TestEndToEndResultCaptured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.partner.EXPECT().CreateOrder(mock.Anything, "K1", mock.AnythingOfType("skb.OrderMeta")).Return("remote-1", nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, mock.Anything, skb.FormatJSON).Return(readyJSON, nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, mock.Anything, skb.FormatPDF).Return(readyDocument, nil).Once()

	created, err := env.orc.CreateOrder(ctx, newOrderRequest())
	require.NoError(t, err)
	assert.Equal(t, types.SubmittingState, created.State)
	assert.True(t, created.IsActive)

	env.drain(t)

	order, err := env.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DoneState, order.State)
	assert.False(t, order.IsActive)
	assert.True(t, order.IsSendRequestToSKB)
	assert.True(t, order.IsSendToGD)
	assert.JSONEq(t, `{"Result":"ok"}`, string(order.ResponseData))
	assert.Nil(t, order.Errors)

	assert.Equal(t, 1, env.objects.Len())
	obj, err := env.objects.GetDocument(ctx, created.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(obj.Data))
	assert.Equal(t, "extract.pdf", obj.Filename)

	require.Len(t, env.downstream.deliveries, 1)
	delivery := env.downstream.deliveries[0]
	assert.Equal(t, created.UUID, delivery.UUID)
	assert.JSONEq(t, `{"Result":"ok"}`, string(delivery.ResponseData))
	assert.Len(t, delivery.FileLinks, 1)

	assert.Equal(t, []types.EventType{
		types.OrderCreatedEvent,
		types.OrderSubmittedEvent,
		types.OrderReadyEvent,
		types.OrderDeliveredEvent,
	}, env.events.Types())
	assert.Equal(t, 0, env.queue.Len())
}

func TestSubmitAlwaysFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.partner.EXPECT().CreateOrder(mock.Anything, "K1", mock.Anything).
		Return("", fmt.Errorf("%w: status 502", skb.ErrUnavailable)).Times(3)

	created, err := env.orc.CreateOrder(ctx, newOrderRequest())
	require.NoError(t, err)

	env.drain(t)

	order, err := env.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FailedSubmitState, order.State)
	assert.NotNil(t, order.Errors)
	assert.Contains(t, *order.Errors, "unavailable")
	assert.False(t, order.IsSendRequestToSKB)
	assert.True(t, order.IsActive)
	assert.Nil(t, order.ResponseData)

	_, err = env.scheduler.Pending(ctx, types.PollTask, created.ID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	assert.Equal(t, 0, env.queue.Len())
	assert.Contains(t, env.events.Types(), types.OrderFailedEvent)
}

func TestSubmitPermanentError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.partner.EXPECT().CreateOrder(mock.Anything, "K1", mock.Anything).
		Return("", &skb.PermanentError{Status: 422, Body: "unknown RequestType"}).Once()

	created, err := env.orc.CreateOrder(ctx, newOrderRequest())
	require.NoError(t, err)
	env.drain(t)

	order, err := env.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FailedSubmitState, order.State)
	assert.Contains(t, *order.Errors, "unknown RequestType")
}

func TestPollExhaustsAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.partner.EXPECT().CreateOrder(mock.Anything, "K1", mock.Anything).Return("remote-1", nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, mock.Anything, skb.FormatJSON).Return(notReady, nil).Times(3)

	created, err := env.orc.CreateOrder(ctx, newOrderRequest())
	require.NoError(t, err)
	env.drain(t)

	order, err := env.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FailedPollState, order.State)
	assert.True(t, order.IsActive)
	assert.Nil(t, order.ResponseData)
	require.NotNil(t, order.Errors)
	assert.Contains(t, *order.Errors, ErrNotReady.Error())
	assert.Equal(t, 0, env.objects.Len())
}

func TestPollWaitsForDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := &types.Order{State: types.PollingState, IsActive: true, IsSendRequestToSKB: true, OrderKindCode: "K1"}
	require.NoError(t, env.orders.Save(ctx, order))
	writes := env.orders.Writes()

	env.partner.EXPECT().FetchResult(mock.Anything, order.UUID, skb.FormatJSON).Return(readyJSON, nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, order.UUID, skb.FormatPDF).Return(notReady, nil).Once()

	err := env.orc.PollResult(ctx, order.ID)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, writes, env.orders.Writes())
	assert.Equal(t, 0, env.objects.Puts())
}

func TestPollIsIdempotentForDoneOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := &types.Order{
		State:              types.DoneState,
		IsActive:           false,
		IsSendRequestToSKB: true,
		IsSendToGD:         true,
		ResponseData:       json.RawMessage(`{"Result":"ok"}`),
	}
	require.NoError(t, env.orders.Save(ctx, order))
	writes := env.orders.Writes()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.orc.PollResult(ctx, order.ID))
		}()
	}
	wg.Wait()

	assert.Equal(t, writes, env.orders.Writes())
	assert.Equal(t, 0, env.objects.Puts())
	assert.Equal(t, 0, env.queue.Len())
}

func TestPollRedeliveryAfterCaptureSchedulesFinalize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := &types.Order{
		State:              types.ReadyState,
		IsActive:           false,
		IsSendRequestToSKB: true,
		ResponseData:       json.RawMessage(`{"Result":"ok"}`),
	}
	require.NoError(t, env.orders.Save(ctx, order))

	require.NoError(t, env.orc.PollResult(ctx, order.ID))

	task, err := env.scheduler.Pending(ctx, types.FinalizeTask, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, task.OrderID)
	assert.Equal(t, 0, env.objects.Puts())
}

func TestFinalizeFailureKeepsResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.downstream.err = errors.New("broker unavailable")

	env.partner.EXPECT().CreateOrder(mock.Anything, "K1", mock.Anything).Return("remote-1", nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, mock.Anything, skb.FormatJSON).Return(readyJSON, nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, mock.Anything, skb.FormatPDF).Return(readyDocument, nil).Once()

	created, err := env.orc.CreateOrder(ctx, newOrderRequest())
	require.NoError(t, err)
	env.drain(t)

	order, err := env.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DoneState, order.State)
	assert.False(t, order.IsActive)
	assert.False(t, order.IsSendToGD)
	assert.JSONEq(t, `{"Result":"ok"}`, string(order.ResponseData))
	require.NotNil(t, order.Errors)
	assert.Contains(t, *order.Errors, "broker unavailable")
	assert.Equal(t, 2, env.downstream.calls)
	assert.Equal(t, 1, env.objects.Len())
}

func TestCreateOrderUnknownKind(t *testing.T) {
	env := newTestEnv(t)

	req := newOrderRequest()
	req.OrderKindCode = "missing"
	_, err := env.orc.CreateOrder(context.Background(), req)

	var notFound *db.OrderKindNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, 0, env.queue.Len())
}

func TestResubmitOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	testCases := []struct {
		name    string
		order   types.Order
		wantErr error
	}{
		{name: "failed", order: types.Order{State: types.FailedSubmitState, IsActive: true}, wantErr: ErrTerminal},
		{name: "inactive", order: types.Order{State: types.FinalizingState, IsActive: false}, wantErr: ErrInactive},
		{name: "submitted", order: types.Order{State: types.PollingState, IsActive: true, IsSendRequestToSKB: true}, wantErr: ErrAlreadySubmitted},
		{name: "created", order: types.Order{State: types.CreatedState, IsActive: true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			order := tc.order
			require.NoError(t, env.orders.Save(ctx, &order))

			got, err := env.orc.ResubmitOrder(ctx, order.ID)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.SubmittingState, got.State)
			_, err = env.scheduler.Pending(ctx, types.SubmitTask, order.ID)
			assert.NoError(t, err)
		})
	}
}

func TestFetchResultOnDemand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := &types.Order{State: types.PollingState, IsActive: true, IsSendRequestToSKB: true}
	require.NoError(t, env.orders.Save(ctx, order))
	writes := env.orders.Writes()

	env.partner.EXPECT().FetchResult(mock.Anything, order.UUID, skb.FormatJSON).Return(notReady, nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, order.UUID, skb.FormatPDF).Return(readyDocument, nil).Once()

	_, err := env.orc.FetchResult(ctx, order.ID, skb.FormatJSON)
	assert.ErrorIs(t, err, ErrNotReady)

	res, err := env.orc.FetchResult(ctx, order.ID, skb.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "extract.pdf", res.Filename)
	assert.Equal(t, writes, env.orders.Writes())
}

func TestSyncKinds(t *testing.T) {
	env := newTestEnv(t)

	env.partner.EXPECT().GetKinds(mock.Anything).Return([]skb.Kind{{Code: "K1", Name: "Extract"}, {Code: "K2", Name: "History"}}, nil).Once()

	kinds, err := env.orc.SyncKinds(context.Background())
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	assert.Equal(t, "Extract", kinds[0].Name)
	assert.Equal(t, "K2", kinds[1].Code)
}

func TestDocumentAndLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := &types.Order{State: types.DoneState}
	require.NoError(t, env.orders.Save(ctx, order))

	_, err := env.orc.Document(ctx, order.ID)
	assert.ErrorIs(t, err, db.ErrFileNotFound)

	_, err = env.orc.Document(ctx, order.ID+1)
	assert.ErrorIs(t, err, db.ErrOrderNotFound)

	key := order.UUID.String()
	require.NoError(t, env.objects.PutDocument(ctx, key, []byte("%PDF"), "a.pdf", "application/pdf"))
	require.NoError(t, env.orders.AddFile(ctx, &types.OrderFile{OrderID: order.ID, ObjectKey: key, Filename: "a.pdf", ContentType: "application/pdf"}))

	obj, err := env.orc.Document(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", obj.Filename)

	links, err := env.orc.Links(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

// unreachableQueue fails to enqueue one task kind while fail is set.
type unreachableQueue struct {
	*queue.Scheduler
	kind types.TaskKind
	fail bool
}

func (u *unreachableQueue) Enqueue(ctx context.Context, kind types.TaskKind, orderID int, delay time.Duration) (bool, error) {
	if u.fail && kind == u.kind {
		return false, errors.New("queue unavailable")
	}
	return u.Scheduler.Enqueue(ctx, kind, orderID, delay)
}

func TestSubmitExhaustedSchedulingPollRecordsError(t *testing.T) {
	tasks := &unreachableQueue{kind: types.PollTask, fail: true}
	env := newTestEnvWithTasks(t, func(s *queue.Scheduler) TaskScheduler {
		tasks.Scheduler = s
		return tasks
	})
	ctx := context.Background()

	env.partner.EXPECT().CreateOrder(mock.Anything, "K1", mock.Anything).Return("remote-1", nil).Once()

	created, err := env.orc.CreateOrder(ctx, newOrderRequest())
	require.NoError(t, err)
	env.drain(t)

	order, err := env.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SubmittedState, order.State)
	assert.True(t, order.IsActive)
	assert.True(t, order.IsSendRequestToSKB)
	require.NotNil(t, order.Errors)
	assert.Contains(t, *order.Errors, "queue unavailable")
	assert.Equal(t, 0, env.queue.Len())

	// once the queue is back a resend schedules the missing poll
	tasks.fail = false
	got, err := env.orc.ResubmitOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PollingState, got.State)
	_, err = env.scheduler.Pending(ctx, types.PollTask, created.ID)
	assert.NoError(t, err)
}

func TestPollExhaustedSchedulingFinalizeClosesOrder(t *testing.T) {
	tasks := &unreachableQueue{kind: types.FinalizeTask, fail: true}
	env := newTestEnvWithTasks(t, func(s *queue.Scheduler) TaskScheduler {
		tasks.Scheduler = s
		return tasks
	})
	ctx := context.Background()

	env.partner.EXPECT().CreateOrder(mock.Anything, "K1", mock.Anything).Return("remote-1", nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, mock.Anything, skb.FormatJSON).Return(readyJSON, nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, mock.Anything, skb.FormatPDF).Return(readyDocument, nil).Once()

	created, err := env.orc.CreateOrder(ctx, newOrderRequest())
	require.NoError(t, err)
	env.drain(t)

	order, err := env.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DoneState, order.State)
	assert.False(t, order.IsActive)
	assert.False(t, order.IsSendToGD)
	assert.JSONEq(t, `{"Result":"ok"}`, string(order.ResponseData))
	require.NotNil(t, order.Errors)
	assert.Contains(t, *order.Errors, "queue unavailable")
	assert.Equal(t, 1, env.objects.Len())
	assert.Equal(t, 0, env.queue.Len())
	assert.Equal(t, 0, env.downstream.calls)
}

func TestWorkflowRespectsStateMachine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := &types.Order{State: types.PollingState, IsActive: true, IsSendRequestToSKB: true}
	require.NoError(t, env.orders.Save(ctx, order))

	err := env.orders.Update(ctx, order.ID, types.OrderUpdate{State: types.Ptr(types.DoneState)})
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	// a submitted order is moved to POLLING before its result is captured
	submitted := &types.Order{State: types.SubmittedState, IsActive: true, IsSendRequestToSKB: true}
	require.NoError(t, env.orders.Save(ctx, submitted))
	env.partner.EXPECT().FetchResult(mock.Anything, submitted.UUID, skb.FormatJSON).Return(readyJSON, nil).Once()
	env.partner.EXPECT().FetchResult(mock.Anything, submitted.UUID, skb.FormatPDF).Return(readyDocument, nil).Once()

	require.NoError(t, env.orc.PollResult(ctx, submitted.ID))
	got, err := env.orders.Get(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FinalizingState, got.State)
	assert.False(t, got.IsActive)
}
