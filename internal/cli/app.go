package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/tally/internal/bus"
	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/remote/dirremote"
	"github.com/roach88/tally/internal/remote/httpremote"
	"github.com/roach88/tally/internal/store"
)

// app is the set of resources a command works with.
type app struct {
	opts   *RootOptions
	bus    *bus.Bus
	store  *store.Store
	remote remote.Store // nil when remote.kind is none
}

func openApp(opts *RootOptions) (*app, error) {
	cfg := opts.Config

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
	}

	b := bus.New()
	opts.Logger.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath,
		store.WithBus(b),
		store.WithClock(opts.now),
		store.WithLogger(opts.Logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	r, err := openRemote(opts)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open remote", err)
	}
	return &app{opts: opts, bus: b, store: st, remote: r}, nil
}

func openRemote(opts *RootOptions) (remote.Store, error) {
	if opts.Remote != nil {
		return opts.Remote, nil
	}
	rc := opts.Config.Remote
	switch rc.Kind {
	case RemoteNone:
		return nil, nil
	case RemoteMemory:
		return remote.NewMemory(), nil
	case RemoteHTTP:
		return httpremote.NewClient(rc.URL, rc.Token, httpremote.WithClientLogger(opts.Logger))
	case RemoteDir:
		return dirremote.New(rc.Dir, dirremote.WithLogger(opts.Logger))
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidRemoteKind, rc.Kind)
	}
}

// requireRemote returns the remote or an ExitError when sync is disabled.
func (a *app) requireRemote() (remote.Store, error) {
	if a.remote == nil {
		return nil, WrapExitError(ExitCommandError, "sync unavailable", ErrRemoteDisabled)
	}
	if err := a.opts.Config.RequireUser(); err != nil {
		return nil, WrapExitError(ExitCommandError, "sync unavailable", err)
	}
	return a.remote, nil
}

func (a *app) Close() error {
	if err := a.store.Close(); err != nil {
		a.opts.Logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
