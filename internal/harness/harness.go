package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/recurrence"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
)

// Harness executes one scenario against a fresh store.
type Harness struct {
	store   *store.Store
	engine  *recurrence.Engine
	clock   *testutil.DeterministicClock
	ids     *testutil.SequentialIDs
	logger  *slog.Logger
	sources map[string]*model.Transaction // by sync id
	order   []string                      // sync ids in insertion order
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. An error is returned
// only when the scenario cannot be set up or a run aborts; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock(testutil.DefaultEpoch, 0)

	st, err := store.Open(":memory:", store.WithClock(clock.Now), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ids := testutil.NewSequentialIDs("occ")
	opts := []recurrence.Option{
		recurrence.WithIDGenerator(ids),
		recurrence.WithClock(clock.Now),
		recurrence.WithLogger(logger),
	}
	if scenario.MaxPerSource > 0 {
		opts = append(opts, recurrence.WithMaxPerSource(scenario.MaxPerSource))
	}

	h := &Harness{
		store:   st,
		engine:  recurrence.New(st, opts...),
		clock:   clock,
		ids:     ids,
		logger:  logger,
		sources: make(map[string]*model.Transaction),
	}

	ctx := context.Background()

	if err := h.insertSources(ctx, scenario.Sources); err != nil {
		return nil, fmt.Errorf("setup sources: %w", err)
	}
	if err := h.insertOccurrences(ctx, scenario.Occurrences); err != nil {
		return nil, fmt.Errorf("setup occurrences: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		outcome, err := h.run(ctx, step)
		if err != nil {
			return result, fmt.Errorf("runs[%d]: %w", i, err)
		}
		result.Runs = append(result.Runs, outcome)
		checkRun(result, i, step, outcome)
	}

	if err := h.collectOccurrences(ctx, result); err != nil {
		return result, err
	}
	for i, a := range scenario.Assertions {
		evaluateAssertion(result, i, a)
	}
	return result, nil
}

func (h *Harness) insertSources(ctx context.Context, specs []SourceSpec) error {
	for _, spec := range specs {
		amount, err := decimal.NewFromString(spec.Amount)
		if err != nil {
			return fmt.Errorf("source %s: %w: %q", spec.SyncID, model.ErrInvalidAmount, spec.Amount)
		}
		txType := model.TxExpense
		if spec.Type != "" {
			txType = model.TxType(spec.Type)
		}

		tx := &model.Transaction{
			SyncID:      spec.SyncID,
			Type:        txType,
			Amount:      amount,
			Memo:        spec.Memo,
			Date:        model.MustDate(spec.Date),
			IsRecurring: true,
			Recurrence:  toPattern(spec.Recurrence),
		}
		if tx.Recurrence == nil {
			// Placeholder, overwritten with the raw text below.
			tx.Recurrence = &model.RecurrencePattern{Type: model.PatternNone, Interval: 1}
		}

		id, err := h.store.InsertTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("source %s: %w", spec.SyncID, err)
		}
		if spec.RawRecurrence != "" {
			if _, err := h.store.DB().ExecContext(ctx,
				`UPDATE transactions SET recurrence = ? WHERE id = ?`, spec.RawRecurrence, id); err != nil {
				return fmt.Errorf("source %s: write raw recurrence: %w", spec.SyncID, err)
			}
		}

		tx.ID = id
		h.sources[spec.SyncID] = tx
		h.order = append(h.order, spec.SyncID)
	}
	return nil
}

func toPattern(p *PatternSpec) *model.RecurrencePattern {
	if p == nil {
		return nil
	}
	out := &model.RecurrencePattern{Type: model.PatternType(p.Type), Interval: p.Interval}
	if p.EndDate != "" {
		end := model.MustDate(p.EndDate)
		out.EndDate = &end
	}
	return out
}

func (h *Harness) insertOccurrences(ctx context.Context, specs []OccurrenceSpec) error {
	for _, spec := range specs {
		src := h.sources[spec.Source]
		occ := model.NewOccurrence(src, model.MustDate(spec.Date), h.ids.Generate(), h.clock.Now())
		if _, err := h.store.InsertTransaction(ctx, occ); err != nil {
			return fmt.Errorf("occurrence %s/%s: %w", spec.Source, spec.Date, err)
		}
	}
	return nil
}

func (h *Harness) run(ctx context.Context, step RunStep) (RunOutcome, error) {
	report, err := h.engine.Process(ctx, model.MustDate(step.Today))
	if err != nil {
		return RunOutcome{}, err
	}

	outcome := RunOutcome{Today: report.Today.String(), Created: report.Created}
	for _, s := range report.Skipped {
		outcome.Skipped = append(outcome.Skipped, SkippedSource{Source: s.SyncID, Code: errorCode(s.Err)})
	}
	for _, s := range report.Sources {
		if s.Capped {
			outcome.Capped = append(outcome.Capped, s.SyncID)
		}
	}
	return outcome, nil
}

// errorCode returns the recurrence error code carried by err.
func errorCode(err error) string {
	var pe *recurrence.PatternError
	if errors.As(err, &pe) {
		return pe.Code
	}
	if recurrence.IsConsistencyError(err) {
		return recurrence.ErrNonAdvancing
	}
	return "unknown"
}

func (h *Harness) collectOccurrences(ctx context.Context, result *Result) error {
	for _, syncID := range h.order {
		occs, err := h.store.ListOccurrences(ctx, h.sources[syncID].ID)
		if err != nil {
			return fmt.Errorf("list occurrences of %s: %w", syncID, err)
		}
		dates := make([]string, len(occs))
		for i, o := range occs {
			dates[i] = o.Date.String()
		}
		result.Occurrences[syncID] = dates
	}
	return nil
}

// checkRun compares one run's outcome with the step's expectations.
func checkRun(result *Result, index int, step RunStep, got RunOutcome) {
	if step.ExpectCreated != nil && got.Created != *step.ExpectCreated {
		result.AddError(fmt.Sprintf("runs[%d] (%s): created %d, expected %d",
			index, step.Today, got.Created, *step.ExpectCreated))
	}

	skipped := make([]string, len(got.Skipped))
	for i, s := range got.Skipped {
		skipped[i] = s.Source
	}
	if !sameSet(skipped, step.ExpectSkipped) {
		result.AddError(fmt.Sprintf("runs[%d] (%s): skipped %v, expected %v",
			index, step.Today, skipped, step.ExpectSkipped))
	}
	if !sameSet(got.Capped, step.ExpectCapped) {
		result.AddError(fmt.Sprintf("runs[%d] (%s): capped %v, expected %v",
			index, step.Today, got.Capped, step.ExpectCapped))
	}
}

func sameSet(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
