package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/bus"
	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/testutil"
)

// createTestStore creates a new store in a temp dir with a deterministic clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	clock := testutil.NewDeterministicClock(time.Time{}, time.Second)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recordEvents subscribes to every table and collects published events.
func recordEvents(t *testing.T, b *bus.Bus) *[]bus.Event {
	t.Helper()
	var events []bus.Event
	for _, table := range model.ObservedTables {
		_, err := b.Subscribe(table, func(ev bus.Event) { events = append(events, ev) })
		if err != nil {
			t.Fatalf("Subscribe(%s) failed: %v", table, err)
		}
	}
	return &events
}

// createTestTransaction creates an expense with minimal required fields.
func createTestTransaction(syncID, date, amount string) *model.Transaction {
	return &model.Transaction{
		SyncID:     syncID,
		MemberID:   1,
		Type:       model.TxExpense,
		Amount:     decimal.RequireFromString(amount),
		CategoryID: 2,
		Memo:       "test " + syncID,
		Date:       model.MustDate(date),
	}
}

// createTestSource creates a recurring source anchored at date.
func createTestSource(syncID, date string, pt model.PatternType, interval int) *model.Transaction {
	tx := createTestTransaction(syncID, date, "100.00")
	tx.IsRecurring = true
	tx.Recurrence = &model.RecurrencePattern{Type: pt, Interval: interval}
	return tx
}
