package recurrence

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(s Store, opts ...Option) *Engine {
	clock := testutil.NewDeterministicClock(time.Time{}, time.Second)
	base := []Option{
		WithIDGenerator(testutil.NewSequentialIDs("occ")),
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}
	return New(s, append(base, opts...)...)
}

func addSource(t *testing.T, s *store.Store, syncID, date string, p *model.RecurrencePattern) *model.Transaction {
	t.Helper()
	pm := int64(9)
	src := &model.Transaction{
		SyncID:          syncID,
		MemberID:        3,
		Type:            model.TxExpense,
		Amount:          decimal.RequireFromString("49.99"),
		CategoryID:      5,
		PaymentMethodID: &pm,
		Memo:            "rent " + syncID,
		Date:            model.MustDate(date),
		IsRecurring:     true,
		Recurrence:      p,
	}
	_, err := s.InsertTransaction(context.Background(), src)
	require.NoError(t, err)
	return src
}

func occurrenceDates(t *testing.T, s *store.Store, sourceID int64) []string {
	t.Helper()
	occs, err := s.ListOccurrences(context.Background(), sourceID)
	require.NoError(t, err)
	out := []string{}
	for _, o := range occs {
		out = append(out, o.Date.String())
	}
	return out
}

func TestProcessRecurring_MonthlyScenario(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternMonthly, Interval: 1})
	eng := newTestEngine(s)

	created, err := eng.ProcessRecurring(ctx, model.MustDate("2025-04-15"))
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Equal(t, []string{"2025-02-01", "2025-03-01", "2025-04-01"}, occurrenceDates(t, s, src.ID))

	// Same day again: nothing new.
	created, err = eng.ProcessRecurring(ctx, model.MustDate("2025-04-15"))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, occurrenceDates(t, s, src.ID), 3)
}

func TestProcessRecurring_EndDate(t *testing.T) {
	s := createTestStore(t)
	end := model.MustDate("2025-02-15")
	src := addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternMonthly, Interval: 1, EndDate: &end})

	created, err := newTestEngine(s).ProcessRecurring(context.Background(), model.MustDate("2025-04-15"))
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, []string{"2025-02-01"}, occurrenceDates(t, s, src.ID))
}

func TestProcessRecurring_CopiesSourceFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternWeekly, Interval: 1})

	_, err := newTestEngine(s).ProcessRecurring(ctx, model.MustDate("2025-01-08"))
	require.NoError(t, err)

	occs, err := s.ListOccurrences(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	occ := occs[0]

	assert.Equal(t, "occ-0001", occ.SyncID)
	assert.NotEqual(t, src.SyncID, occ.SyncID)
	assert.Equal(t, src.MemberID, occ.MemberID)
	assert.Equal(t, src.Type, occ.Type)
	assert.True(t, src.Amount.Equal(occ.Amount))
	assert.Equal(t, src.CategoryID, occ.CategoryID)
	assert.Equal(t, src.Memo, occ.Memo)
	require.NotNil(t, occ.PaymentMethodID)
	assert.Equal(t, int64(9), *occ.PaymentMethodID)
	assert.False(t, occ.IsRecurring)
	assert.Nil(t, occ.Recurrence)
	assert.True(t, occ.IsOccurrence())
	assert.Equal(t, occ.CreatedAt, occ.UpdatedAt)
}

func TestProcessRecurring_Monotonic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := addSource(t, s, "src", "2025-01-31", &model.RecurrencePattern{Type: model.PatternMonthly, Interval: 1})
	eng := newTestEngine(s)

	for _, today := range []string{"2025-02-10", "2025-03-31", "2025-03-31", "2025-06-15"} {
		_, err := eng.ProcessRecurring(ctx, model.MustDate(today))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"2025-02-28", "2025-03-31", "2025-04-30", "2025-05-31"}, occurrenceDates(t, s, src.ID))
}

func TestProcessRecurring_DeletedOccurrenceNotRegenerated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternMonthly, Interval: 1})
	eng := newTestEngine(s)

	_, err := eng.ProcessRecurring(ctx, model.MustDate("2025-04-15"))
	require.NoError(t, err)

	occs, err := s.ListOccurrences(ctx, src.ID)
	require.NoError(t, err)
	require.NoError(t, s.DeleteTransaction(ctx, occs[1].ID))

	created, err := eng.ProcessRecurring(ctx, model.MustDate("2025-04-15"))
	require.NoError(t, err)
	assert.Equal(t, 0, created, "cursor is the latest date, gaps stay gaps")
	assert.Equal(t, []string{"2025-02-01", "2025-04-01"}, occurrenceDates(t, s, src.ID))
}

func TestProcess_FaultIsolation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := addSource(t, s, "a", "2025-01-01", &model.RecurrencePattern{Type: model.PatternDaily, Interval: 1})
	bad := addSource(t, s, "bad", "2025-01-01", &model.RecurrencePattern{Type: "fortnightly", Interval: 1})
	zero := addSource(t, s, "zero", "2025-01-01", &model.RecurrencePattern{Type: model.PatternWeekly, Interval: 0})
	none := addSource(t, s, "none", "2025-01-01", &model.RecurrencePattern{Type: model.PatternNone, Interval: 1})
	b := addSource(t, s, "b", "2025-01-01", &model.RecurrencePattern{Type: model.PatternWeekly, Interval: 1})

	report, err := newTestEngine(s).Process(ctx, model.MustDate("2025-01-08"))
	require.NoError(t, err)

	assert.Equal(t, 7+1, report.Created)
	assert.Len(t, occurrenceDates(t, s, a.ID), 7)
	assert.Len(t, occurrenceDates(t, s, b.ID), 1)
	assert.Empty(t, occurrenceDates(t, s, bad.ID))
	assert.Empty(t, occurrenceDates(t, s, none.ID))

	require.Len(t, report.Skipped, 2)
	assert.Equal(t, bad.ID, report.Skipped[0].SourceID)
	assert.Equal(t, zero.ID, report.Skipped[1].SourceID)
	assert.True(t, IsPatternError(report.Skipped[0]))

	var pe *PatternError
	require.ErrorAs(t, report.Skipped[1].Err, &pe)
	assert.Equal(t, zero.ID, pe.SourceID)

	require.Len(t, report.Sources, 2)
	assert.Equal(t, "a", report.Sources[0].SyncID)
	assert.Equal(t, "b", report.Sources[1].SyncID)
}

func TestProcess_DamagedPatternSkipped(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternDaily, Interval: 1})

	_, err := s.DB().Exec(`UPDATE transactions SET recurrence = 'not json' WHERE id = ?`, src.ID)
	require.NoError(t, err)

	report, err := newTestEngine(s).Process(ctx, model.MustDate("2025-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	require.Len(t, report.Skipped, 1)

	var pe *PatternError
	require.ErrorAs(t, report.Skipped[0].Err, &pe)
	assert.Equal(t, ErrPatternMissing, pe.Code)
}

func TestProcess_CapResumesNextRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternDaily, Interval: 1})
	eng := newTestEngine(s, WithMaxPerSource(10))
	today := model.MustDate("2025-01-25")

	report, err := eng.Process(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Created)
	require.Len(t, report.Sources, 1)
	assert.True(t, report.Sources[0].Capped)

	report, err = eng.Process(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Created)

	report, err = eng.Process(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Created)
	assert.False(t, report.Sources[0].Capped)

	got := occurrenceDates(t, s, src.ID)
	assert.Len(t, got, 24)
	assert.Equal(t, "2025-01-25", got[len(got)-1])
}

func TestProcess_DefaultsTodayFromClock(t *testing.T) {
	s := createTestStore(t)
	src := addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternDaily, Interval: 1})

	now := time.Date(2025, 1, 3, 18, 0, 0, 0, time.UTC)
	eng := New(s,
		WithIDGenerator(testutil.NewSequentialIDs("occ")),
		WithClock(testutil.FixedNow(now)),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)

	report, err := eng.Process(context.Background(), model.Date{})
	require.NoError(t, err)
	assert.Equal(t, model.MustDate("2025-01-03"), report.Today)
	assert.Equal(t, []string{"2025-01-02", "2025-01-03"}, occurrenceDates(t, s, src.ID))
}

func TestProcess_ContextCanceled(t *testing.T) {
	s := createTestStore(t)
	addSource(t, s, "src", "2025-01-01", &model.RecurrencePattern{Type: model.PatternDaily, Interval: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(s).ProcessRecurring(ctx, model.MustDate("2025-02-01"))
	assert.ErrorIs(t, err, context.Canceled)
}

// failingStore fails inserts after a number of successes.
type failingStore struct {
	sources  []*model.Transaction
	okWrites int
	writes   int
}

func (f *failingStore) ListRecurringSources(context.Context) ([]*model.Transaction, error) {
	return f.sources, nil
}

func (f *failingStore) LatestOccurrenceDate(context.Context, int64) (model.Date, bool, error) {
	return model.Date{}, false, nil
}

func (f *failingStore) InsertTransaction(context.Context, *model.Transaction) (int64, error) {
	if f.writes >= f.okWrites {
		return 0, errors.New("disk full")
	}
	f.writes++
	return int64(f.writes), nil
}

func TestProcess_StoreErrorStopsRun(t *testing.T) {
	fs := &failingStore{
		okWrites: 2,
		sources: []*model.Transaction{
			{ID: 1, SyncID: "s1", Type: model.TxExpense, Date: model.MustDate("2025-01-01"), IsRecurring: true,
				Recurrence: &model.RecurrencePattern{Type: model.PatternDaily, Interval: 1}},
			{ID: 2, SyncID: "s2", Type: model.TxExpense, Date: model.MustDate("2025-01-01"), IsRecurring: true,
				Recurrence: &model.RecurrencePattern{Type: model.PatternDaily, Interval: 1}},
		},
	}

	report, err := newTestEngine(fs).Process(context.Background(), model.MustDate("2025-01-10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Created, "partial progress is reported")
	assert.False(t, IsPatternError(err))
}

func TestPatternError_Message(t *testing.T) {
	err := &PatternError{SourceID: 4, Code: ErrPatternSchema, Message: "bad type"}
	assert.Equal(t, "[E202] source 4: bad type", err.Error())

	ce := &ConsistencyError{SourceID: 4, Previous: model.MustDate("2025-01-01"), Candidate: model.MustDate("2025-01-01")}
	assert.Contains(t, ce.Error(), "E210")
}
