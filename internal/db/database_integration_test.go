//go:build integration_tests
// +build integration_tests

/* В связи с санкциями, нужен VPN, чтобы докерхаб работал */

package db

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellywell/skborders/internal/testutils"
	"github.com/wellywell/skborders/internal/types"
)

var DBDSN string

func TestMain(m *testing.M) {
	code, err := runMain(m)

	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

func runMain(m *testing.M) (int, error) {

	databaseDSN, cleanUp, err := testutils.RunTestDatabase()
	defer cleanUp()

	if err != nil {
		return 1, err
	}
	DBDSN = databaseDSN

	exitCode := m.Run()

	return exitCode, nil

}

func newTestOrder(t *testing.T, database *Database, kind *types.OrderKind) *types.Order {
	order := &types.Order{
		UUID:            uuid.New(),
		CadastralNumber: "77:01:0004042:1234",
		OrderKindID:     kind.ID,
		OrderKindCode:   kind.Code,
		AnswerEmail:     "client@example.com",
		State:           types.CreatedState,
		IsActive:        true,
	}
	require.NoError(t, database.Orders.Save(context.Background(), order))
	return order
}

func TestOrders(t *testing.T) {
	database, err := NewDatabase(DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()
	ctx := context.Background()

	kind := &types.OrderKind{Code: "K1", Name: "Extract"}
	require.NoError(t, database.Kinds.Save(ctx, kind))

	t.Run("Test empty list", func(t *testing.T) {
		records, err := database.Orders.List(ctx, 100, 0)
		assert.NoError(t, err)
		assert.Equal(t, 0, len(records))
	})

	t.Run("Test round trip", func(t *testing.T) {
		order := newTestOrder(t, database, kind)
		assert.NotZero(t, order.ID)

		got, err := database.Orders.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.UUID, got.UUID)
		assert.Equal(t, "K1", got.OrderKindCode)
		assert.Equal(t, types.CreatedState, got.State)
		assert.True(t, got.IsActive)
		assert.Nil(t, got.ResponseData)
		assert.Nil(t, got.Errors)
	})

	t.Run("Test duplicate uuid", func(t *testing.T) {
		order := newTestOrder(t, database, kind)
		dup := *order
		dup.ID = 0
		err := database.Orders.Save(ctx, &dup)
		var exists *OrderExistsError
		assert.ErrorAs(t, err, &exists)
	})

	t.Run("Test conditional update", func(t *testing.T) {
		order := newTestOrder(t, database, kind)

		err := database.Orders.Update(ctx, order.ID, types.OrderUpdate{
			State: types.Ptr(types.SubmittingState),
		}, types.CreatedState)
		require.NoError(t, err)

		err = database.Orders.Update(ctx, order.ID, types.OrderUpdate{
			State: types.Ptr(types.SubmittingState),
		}, types.CreatedState)
		assert.ErrorIs(t, err, ErrStaleOrder)

		err = database.Orders.Update(ctx, order.ID+1000, types.OrderUpdate{
			State: types.Ptr(types.SubmittingState),
		})
		assert.ErrorIs(t, err, ErrOrderNotFound)

		err = database.Orders.Update(ctx, order.ID, types.OrderUpdate{
			ResponseData: []byte(`{"Result":true}`),
			IsActive:     types.Ptr(false),
		})
		require.NoError(t, err)

		got, err := database.Orders.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"Result":true}`, string(got.ResponseData))
		assert.False(t, got.IsActive)
		assert.Equal(t, types.SubmittingState, got.State)

		err = database.Orders.Update(ctx, order.ID, types.OrderUpdate{
			State: types.Ptr(types.ReadyState),
		})
		assert.ErrorIs(t, err, types.ErrInvalidTransition)

		err = database.Orders.Update(ctx, order.ID, types.OrderUpdate{
			State: types.Ptr(types.DoneState),
		}, types.SubmittingState)
		assert.ErrorIs(t, err, types.ErrInvalidTransition)
	})

	t.Run("Test files", func(t *testing.T) {
		order := newTestOrder(t, database, kind)
		file := &types.OrderFile{OrderID: order.ID, ObjectKey: order.UUID.String(), Filename: "a.pdf", ContentType: "application/pdf"}
		require.NoError(t, database.Orders.AddFile(ctx, file))
		require.NoError(t, database.Orders.AddFile(ctx, file))

		files, err := database.Orders.Files(ctx, order.ID)
		require.NoError(t, err)
		assert.Len(t, files, 1)
		assert.Equal(t, "a.pdf", files[0].Filename)
	})

	t.Run("Test delete", func(t *testing.T) {
		order := newTestOrder(t, database, kind)
		require.NoError(t, database.Orders.Delete(ctx, order.ID))
		_, err := database.Orders.Get(ctx, order.ID)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestKinds(t *testing.T) {
	database, err := NewDatabase(DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()
	ctx := context.Background()

	err = database.Kinds.Upsert(ctx, []types.OrderKind{{Code: "A1", Name: "first"}, {Code: "A2", Name: "second"}})
	require.NoError(t, err)
	err = database.Kinds.Upsert(ctx, []types.OrderKind{{Code: "A1", Name: "renamed"}})
	require.NoError(t, err)

	k, err := database.Kinds.GetByCode(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", k.Name)

	_, err = database.Kinds.GetByCode(ctx, "missing")
	var notFound *OrderKindNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
