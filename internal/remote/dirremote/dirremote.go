// Package dirremote stores each user's snapshot as <dir>/<userID>.json.
//
// The directory is meant to be shared by a file-sync tool or a network
// mount. Writes go to a temp file and are renamed into place, so readers
// never see a partial document. Subscribers watch the directory with
// fsnotify and receive the document each time it is replaced.
package dirremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/remote"
)

// ErrBadUserID is returned for user ids that cannot name a file.
var ErrBadUserID = errors.New("user id is not a valid file name")

// Option configures a Dir.
type Option func(*Dir)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dir) { d.logger = l }
}

// Dir is a remote.Store over a directory.
type Dir struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

var _ remote.Store = (*Dir)(nil)

// New returns a Dir rooted at root, creating it if needed.
func New(root string, opts ...Option) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create remote dir: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	d := &Dir{root: abs, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the document path for userID.
func (d *Dir) Path(userID string) (string, error) {
	if userID == "" || userID == "." || userID == ".." ||
		strings.ContainsAny(userID, `/\`) || strings.HasPrefix(userID, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadUserID, userID)
	}
	return filepath.Join(d.root, userID+".json"), nil
}

// UploadSnapshot atomically replaces the user's document.
func (d *Dir) UploadSnapshot(ctx context.Context, userID string, snap *model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.Path(userID)
	if err != nil {
		return err
	}
	if err := remote.CheckUpload(userID, snap); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(d.root, "."+userID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// FetchSnapshot reads the user's document or returns remote.ErrNoSnapshot.
func (d *Dir) FetchSnapshot(ctx context.Context, userID string) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.Path(userID)
	if err != nil {
		return nil, err
	}
	return readSnapshot(path)
}

func readSnapshot(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, remote.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	return &snap, nil
}

// Subscribe watches the user's document. A Change is sent whenever the file
// is replaced with content whose checksum differs from the last one seen.
// The channel closes when ctx is done.
func (d *Dir) Subscribe(ctx context.Context, userID string) (<-chan remote.Change, error) {
	path, err := d.Path(userID)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(d.root); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", d.root, err)
	}

	// Seed with the current document so an unchanged file is not redelivered.
	var last string
	if snap, err := readSnapshot(path); err == nil {
		last = snap.Checksum
	}

	ch := make(chan remote.Change)
	go func() {
		defer close(ch)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != path || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
					continue
				}
				snap, err := readSnapshot(path)
				if err != nil {
					d.logger.Debug("skip unreadable snapshot", slog.String("path", path), slog.String("error", err.Error()))
					continue
				}
				if snap.Checksum == last {
					continue
				}
				last = snap.Checksum

				select {
				case ch <- remote.Change{UserID: userID, Snapshot: snap, ReceivedAt: d.now().UTC()}:
				case <-ctx.Done():
					return
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.logger.Warn("watch error", slog.String("dir", d.root), slog.String("error", err.Error()))
			}
		}
	}()
	return ch, nil
}
