package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tally/internal/model"
)

// DefaultMaxPerSource bounds the occurrences one source may create in a
// single run. The next run continues from the recomputed cursor.
const DefaultMaxPerSource = 5000

// Store is the slice of the local store the engine needs.
type Store interface {
	ListRecurringSources(ctx context.Context) ([]*model.Transaction, error)
	LatestOccurrenceDate(ctx context.Context, sourceID int64) (model.Date, bool, error)
	InsertTransaction(ctx context.Context, tx *model.Transaction) (int64, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the syncId generator for new occurrences.
// Defaults to model.UUIDv7Generator.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the clock for occurrence timestamps and the default "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMaxPerSource sets the per-source cap for one run. n <= 0 removes it.
func WithMaxPerSource(n int) Option {
	return func(e *Engine) { e.maxPerSource = n }
}

// Engine generates occurrences for every recurring source in a store.
// Sources are processed sequentially in id order.
type Engine struct {
	store        Store
	ids          model.IDGenerator
	now          func() time.Time
	logger       *slog.Logger
	maxPerSource int
}

// New creates an engine over store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		ids:          model.UUIDv7Generator{},
		now:          time.Now,
		logger:       slog.Default(),
		maxPerSource: DefaultMaxPerSource,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SourceResult is the outcome for one processed source.
type SourceResult struct {
	SourceID int64
	SyncID   string
	Created  int
	Capped   bool
}

// Report is the detailed result of one run.
type Report struct {
	Today   model.Date
	Created int
	Sources []SourceResult
	Skipped []SourceError
}

// ProcessRecurring runs the engine for today and returns the number of
// occurrences created. A zero today means the current date per the clock.
func (e *Engine) ProcessRecurring(ctx context.Context, today model.Date) (int, error) {
	report, err := e.Process(ctx, today)
	if report == nil {
		return 0, err
	}
	return report.Created, err
}

// Process runs the engine for today and returns a per-source report.
//
// Invalid patterns and non-advancing schedules are recorded in
// Report.Skipped and do not fail the run. A store error or context
// cancellation stops the run and is returned together with the partial
// report; occurrences written before the failure stay written.
func (e *Engine) Process(ctx context.Context, today model.Date) (*Report, error) {
	if today.IsZero() {
		today = model.DateOf(e.now())
	}

	sources, err := e.store.ListRecurringSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recurring sources: %w", err)
	}

	report := &Report{Today: today}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if src.Recurrence != nil && src.Recurrence.Type == model.PatternNone {
			continue
		}

		res, err := e.processSource(ctx, src, today)
		report.Created += res.Created
		if err != nil {
			var pe *PatternError
			var ce *ConsistencyError
			if errors.As(err, &pe) || errors.As(err, &ce) {
				e.logger.Warn("skipping recurring source",
					slog.Int64("source_id", src.ID),
					slog.String("sync_id", src.SyncID),
					slog.String("error", err.Error()))
				report.Skipped = append(report.Skipped, SourceError{SourceID: src.ID, SyncID: src.SyncID, Err: err})
				continue
			}
			report.Sources = append(report.Sources, res)
			return report, fmt.Errorf("source %d: %w", src.ID, err)
		}
		report.Sources = append(report.Sources, res)

		if res.Capped {
			e.logger.Info("recurring source capped for this run",
				slog.Int64("source_id", src.ID),
				slog.Int("count", res.Created))
		}
	}

	e.logger.Info("recurrence processed",
		slog.String("today", today.String()),
		slog.Int("count", report.Created),
		slog.Int("skipped", len(report.Skipped)))
	return report, nil
}

func (e *Engine) processSource(ctx context.Context, src *model.Transaction, today model.Date) (SourceResult, error) {
	res := SourceResult{SourceID: src.ID, SyncID: src.SyncID}

	if err := ValidatePattern(src.Recurrence); err != nil {
		var pe *PatternError
		if errors.As(err, &pe) {
			pe.SourceID = src.ID
		}
		return res, err
	}

	last, ok, err := e.store.LatestOccurrenceDate(ctx, src.ID)
	if err != nil {
		return res, err
	}
	if !ok {
		last = src.Date
	}

	dates, capped, err := DueDates(src.Date, last, *src.Recurrence, today, e.maxPerSource)
	if err != nil {
		var ce *ConsistencyError
		if errors.As(err, &ce) {
			ce.SourceID = src.ID
		}
		return res, err
	}
	res.Capped = capped

	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		occ := model.NewOccurrence(src, d, e.ids.Generate(), e.now().UTC())
		if _, err := e.store.InsertTransaction(ctx, occ); err != nil {
			return res, fmt.Errorf("insert occurrence %s: %w", d, err)
		}
		res.Created++
		e.logger.Debug("occurrence created",
			slog.Int64("source_id", src.ID),
			slog.String("date", d.String()))
	}
	return res, nil
}
