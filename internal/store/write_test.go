package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/bus"
	"github.com/roach88/tally/internal/model"
)

func TestInsertTransaction_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	pm := int64(4)
	end := model.MustDate("2025-12-31")
	tx := createTestTransaction("tx-1", "2025-01-31", "1234.56")
	tx.PaymentMethodID = &pm
	tx.IsRecurring = true
	tx.Recurrence = &model.RecurrencePattern{Type: model.PatternMonthly, Interval: 1, EndDate: &end}

	id, err := s.InsertTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, id, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero(), "created_at filled from clock")
	assert.Equal(t, tx.CreatedAt, tx.UpdatedAt)

	got, err := s.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", got.SyncID)
	assert.Equal(t, model.TxExpense, got.Type)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(got.Amount))
	assert.Equal(t, model.MustDate("2025-01-31"), got.Date)
	require.NotNil(t, got.PaymentMethodID)
	assert.Equal(t, int64(4), *got.PaymentMethodID)
	assert.True(t, got.IsRecurring)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, model.PatternMonthly, got.Recurrence.Type)
	require.NotNil(t, got.Recurrence.EndDate)
	assert.Equal(t, end, *got.Recurrence.EndDate)
	assert.Nil(t, got.RecurSourceID)
	assert.True(t, tx.CreatedAt.Equal(got.CreatedAt))
}

func TestInsertTransaction_PublishesCreate(t *testing.T) {
	b := bus.New()
	events := recordEvents(t, b)
	s := createTestStore(t, WithBus(b))

	id, err := s.InsertTransaction(context.Background(), createTestTransaction("tx-1", "2025-01-01", "5"))
	require.NoError(t, err)

	require.Len(t, *events, 1)
	assert.Equal(t, bus.Event{Table: model.TableTransactions, Op: bus.OpCreate, ID: id}, (*events)[0])
}

func TestInsertTransaction_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx := createTestTransaction("", "2025-01-01", "5")
	_, err := s.InsertTransaction(ctx, tx)
	assert.ErrorIs(t, err, model.ErrMissingSyncID)

	tx = createTestTransaction("tx-2", "2025-01-01", "5")
	tx.IsRecurring = true
	_, err = s.InsertTransaction(ctx, tx)
	assert.ErrorIs(t, err, model.ErrRecurringSource)
}

func TestInsertTransaction_DuplicateSyncID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.InsertTransaction(ctx, createTestTransaction("dup", "2025-01-01", "5"))
	require.NoError(t, err)

	_, err = s.InsertTransaction(ctx, createTestTransaction("dup", "2025-01-02", "6"))
	assert.ErrorIs(t, err, ErrDuplicateSyncID)
}

func TestUpdateTransaction_BumpsUpdatedAt(t *testing.T) {
	b := bus.New()
	events := recordEvents(t, b)
	s := createTestStore(t, WithBus(b))
	ctx := context.Background()

	tx := createTestTransaction("tx-1", "2025-01-01", "5")
	_, err := s.InsertTransaction(ctx, tx)
	require.NoError(t, err)
	created := tx.CreatedAt

	tx.Memo = "groceries"
	tx.Amount = decimal.RequireFromString("7.25")
	require.NoError(t, s.UpdateTransaction(ctx, tx))

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "groceries", got.Memo)
	assert.Equal(t, "7.25", got.Amount.String())
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.After(created))

	require.Len(t, *events, 2)
	assert.Equal(t, bus.OpUpdate, (*events)[1].Op)
}

func TestUpdateTransaction_SyncIDImmutable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx := createTestTransaction("tx-1", "2025-01-01", "5")
	_, err := s.InsertTransaction(ctx, tx)
	require.NoError(t, err)

	tx.SyncID = "tx-other"
	err = s.UpdateTransaction(ctx, tx)
	assert.ErrorIs(t, err, ErrImmutableSyncID)

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", got.SyncID)
}

func TestUpdateTransaction_NotFound(t *testing.T) {
	s := createTestStore(t)

	tx := createTestTransaction("tx-1", "2025-01-01", "5")
	tx.ID = 99
	err := s.UpdateTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTransaction(t *testing.T) {
	b := bus.New()
	events := recordEvents(t, b)
	s := createTestStore(t, WithBus(b))
	ctx := context.Background()

	id, err := s.InsertTransaction(ctx, createTestTransaction("tx-1", "2025-01-01", "5"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteTransaction(ctx, id))
	_, err = s.GetTransaction(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteTransaction(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, *events, 2, "failed delete publishes nothing")
	assert.Equal(t, bus.Event{Table: model.TableTransactions, Op: bus.OpDelete, ID: id}, (*events)[1])
}

func TestInsertEntity_RoundTrip(t *testing.T) {
	b := bus.New()
	events := recordEvents(t, b)
	s := createTestStore(t, WithBus(b))
	ctx := context.Background()

	e := &model.Entity{
		Table:  model.TableMembers,
		SyncID: "m-1",
		Attrs:  json.RawMessage(`{"name": "Ana", "color": "teal"}`),
	}
	id, err := s.InsertEntity(ctx, e)
	require.NoError(t, err)

	got, err := s.GetEntity(ctx, model.TableMembers, id)
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.SyncID)
	assert.Equal(t, model.TableMembers, got.Table)
	assert.JSONEq(t, `{"color":"teal","name":"Ana"}`, string(got.Attrs))
	assert.Equal(t, `{"color":"teal","name":"Ana"}`, string(got.Attrs), "attrs stored canonical")

	require.Len(t, *events, 1)
	assert.Equal(t, bus.Event{Table: model.TableMembers, Op: bus.OpCreate, ID: id}, (*events)[0])
}

func TestInsertEntity_Rejections(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.InsertEntity(ctx, &model.Entity{Table: model.TableTransactions, SyncID: "x"})
	assert.ErrorIs(t, err, model.ErrInvalidTable)

	_, err = s.InsertEntity(ctx, &model.Entity{Table: model.TableGoals, SyncID: "g", Attrs: json.RawMessage(`{"target": 10.5}`)})
	assert.ErrorIs(t, err, model.ErrFloatAttribute)

	_, err = s.InsertEntity(ctx, &model.Entity{Table: model.TableGoals, SyncID: "g"})
	require.NoError(t, err)
	_, err = s.InsertEntity(ctx, &model.Entity{Table: model.TableGoals, SyncID: "g"})
	assert.ErrorIs(t, err, ErrDuplicateSyncID)

	// The same syncId in another table is fine.
	_, err = s.InsertEntity(ctx, &model.Entity{Table: model.TableBudgets, SyncID: "g"})
	assert.NoError(t, err)
}

func TestUpdateEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := &model.Entity{Table: model.TableCategories, SyncID: "c-1", Attrs: json.RawMessage(`{"name":"Food"}`)}
	_, err := s.InsertEntity(ctx, e)
	require.NoError(t, err)

	e.Attrs = json.RawMessage(`{"name":"Groceries"}`)
	require.NoError(t, s.UpdateEntity(ctx, e))

	got, err := s.GetEntity(ctx, model.TableCategories, e.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Groceries"}`, string(got.Attrs))
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	e.SyncID = "c-2"
	assert.ErrorIs(t, s.UpdateEntity(ctx, e), ErrImmutableSyncID)
}

func TestDeleteEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.InsertEntity(ctx, &model.Entity{Table: model.TableValues, SyncID: "v-1"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntity(ctx, model.TableValues, id))
	_, err = s.GetEntity(ctx, model.TableValues, id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteEntity(ctx, model.TableTransactions, 1), model.ErrInvalidTable)
}
