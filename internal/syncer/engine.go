package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/remote"
)

// DefaultUploadTimeout bounds one upload when none is configured.
const DefaultUploadTimeout = 30 * time.Second

// LocalStore is the slice of the local store the engine needs.
type LocalStore interface {
	Snapshot(ctx context.Context, userID, deviceID string) (*model.Snapshot, error)
	ReplaceAll(ctx context.Context, tables map[model.Table][]json.RawMessage) error
}

// Config identifies the local replica and bounds uploads.
type Config struct {
	UserID        string
	DeviceID      string
	UploadTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Outcome says what happened to one remote change.
type Outcome int

const (
	OutcomeApplied Outcome = iota + 1
	OutcomeDroppedPaused
	OutcomeEcho
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDroppedPaused:
		return "dropped_paused"
	case OutcomeEcho:
		return "echo"
	case OutcomeIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Stats are cumulative engine counters.
type Stats struct {
	Uploads       int64 `json:"uploads"`
	Failures      int64 `json:"failures"`
	DroppedPaused int64 `json:"droppedPaused"`
	Applied       int64 `json:"applied"`
	Echoes        int64 `json:"echoes"`
	Rejected      int64 `json:"rejected"`
}

// Engine is the synchronization engine.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	local  LocalStore
	remote remote.Uploader
	cfg    Config
	guard  PauseGuard
	logger *slog.Logger

	uploads       atomic.Int64
	failures      atomic.Int64
	droppedPaused atomic.Int64
	applied       atomic.Int64
	echoes        atomic.Int64
	rejected      atomic.Int64
}

// New creates an engine that pushes local to up.
func New(local LocalStore, up remote.Uploader, cfg Config, opts ...Option) *Engine {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	e := &Engine{
		local:  local,
		remote: up,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Paused reports whether a flush currently holds the pause guard.
func (e *Engine) Paused() bool {
	return e.guard.Paused()
}

// Flush uploads a full snapshot of the local store as userID's remote
// document. Remote-change delivery is paused for the duration and resumed
// on every exit path. The upload is abandoned after the configured upload
// timeout even if the remote ignores cancellation.
//
// Failures are returned as *SyncError and never retried here.
func (e *Engine) Flush(ctx context.Context, userID string) error {
	if userID == "" {
		return &SyncError{Kind: KindSnapshot, Err: ErrNoUser}
	}

	return e.guard.WithPause(func() error {
		snap, err := e.local.Snapshot(ctx, userID, e.cfg.DeviceID)
		if err != nil {
			e.failures.Add(1)
			return &SyncError{Kind: KindSnapshot, UserID: userID, Err: err}
		}

		start := time.Now()
		if err := e.upload(ctx, userID, snap); err != nil {
			e.failures.Add(1)
			return &SyncError{Kind: KindTransient, UserID: userID, Err: err}
		}
		e.uploads.Add(1)

		e.logger.Debug("snapshot uploaded",
			slog.String("user", userID),
			slog.String("checksum", snap.Checksum),
			slog.Duration("elapsed", time.Since(start)))
		return nil
	})
}

func (e *Engine) upload(ctx context.Context, userID string, snap *model.Snapshot) error {
	uctx, cancel := context.WithTimeout(ctx, e.cfg.UploadTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.remote.UploadSnapshot(uctx, userID, snap)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		return nil
	case <-uctx.Done():
		return fmt.Errorf("upload: %w", uctx.Err())
	}
}

// FlushLogged flushes for the configured user and logs any failure instead
// of returning it. It is the flush hook handed to the debounce scheduler, so
// sync failures never reach the code path that mutated local data.
func (e *Engine) FlushLogged(ctx context.Context) {
	if err := e.Flush(ctx, e.cfg.UserID); err != nil {
		kind := ""
		var se *SyncError
		if errors.As(err, &se) {
			kind = string(se.Kind)
		}
		e.logger.Error("sync flush failed",
			slog.String("user", e.cfg.UserID),
			slog.String("kind", kind),
			slog.String("error", err.Error()))
	}
}

// ApplyRemote applies one remote change to the local store by wholesale
// replacement. Changes for other users are ignored, changes arriving while
// a flush is in progress are dropped, and echoes of the local state are
// skipped.
func (e *Engine) ApplyRemote(ctx context.Context, c remote.Change) (Outcome, error) {
	if c.Snapshot == nil || c.UserID != e.cfg.UserID || c.Snapshot.UserID != e.cfg.UserID {
		return OutcomeIgnored, nil
	}

	var outcome Outcome
	ran, err := e.guard.unlessPaused(func() error {
		if err := c.Snapshot.Verify(); err != nil {
			e.rejected.Add(1)
			return &SyncError{Kind: KindApply, UserID: c.UserID, Err: err}
		}

		local, err := e.local.Snapshot(ctx, e.cfg.UserID, e.cfg.DeviceID)
		if err != nil {
			return &SyncError{Kind: KindSnapshot, UserID: c.UserID, Err: err}
		}
		if local.Checksum == c.Snapshot.Checksum {
			e.echoes.Add(1)
			outcome = OutcomeEcho
			return nil
		}

		if err := e.local.ReplaceAll(ctx, c.Snapshot.Tables); err != nil {
			e.rejected.Add(1)
			return &SyncError{Kind: KindApply, UserID: c.UserID, Err: err}
		}
		e.applied.Add(1)
		outcome = OutcomeApplied
		e.logger.Info("remote change applied",
			slog.String("user", c.UserID),
			slog.String("device", c.Snapshot.DeviceID),
			slog.String("checksum", c.Snapshot.Checksum))
		return nil
	})
	if !ran {
		e.droppedPaused.Add(1)
		e.logger.Debug("remote change dropped while paused", slog.String("user", c.UserID))
		return OutcomeDroppedPaused, nil
	}
	return outcome, err
}

// Listen subscribes to remote changes for the configured user and applies
// them until ctx is done or the subscription closes. Apply failures are
// logged and do not end the loop.
func (e *Engine) Listen(ctx context.Context, sub remote.Subscriber) error {
	ch, err := sub.Subscribe(ctx, e.cfg.UserID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			outcome, err := e.ApplyRemote(ctx, c)
			if err != nil {
				e.logger.Warn("remote change rejected",
					slog.String("user", e.cfg.UserID),
					slog.String("error", err.Error()))
				continue
			}
			e.logger.Debug("remote change handled", slog.String("outcome", outcome.String()))
		}
	}
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Uploads:       e.uploads.Load(),
		Failures:      e.failures.Load(),
		DroppedPaused: e.droppedPaused.Load(),
		Applied:       e.applied.Load(),
		Echoes:        e.echoes.Load(),
		Rejected:      e.rejected.Load(),
	}
}
