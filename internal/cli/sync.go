package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Pull bool
}

// SyncResult is the output of the sync command.
type SyncResult struct {
	Direction string `json:"direction"` // "push" | "pull"
	Outcome   string `json:"outcome"`
	Checksum  string `json:"checksum,omitempty"`
}

func (r SyncResult) Text() string {
	if r.Checksum == "" {
		return fmt.Sprintf("%s: %s", r.Direction, r.Outcome)
	}
	return fmt.Sprintf("%s: %s (%s)", r.Direction, r.Outcome, r.Checksum)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload the local snapshot now, or pull the remote one",
		Long: `Upload a full snapshot of the local database to the remote store
immediately, without waiting for the debounce period.

With --pull, fetch the user's remote snapshot instead and replace the local
tables with it.

Example:
  tally sync --user alice
  tally sync --pull`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Pull, "pull", false, "replace local data with the remote snapshot")
	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd.Context())

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	rs, err := a.requireRemote()
	if err != nil {
		_ = out.Error(CodeConfig, err.Error(), nil)
		return err
	}

	cfg := opts.Config
	eng := syncer.New(a.store, rs, syncer.Config{
		UserID:        cfg.UserID,
		DeviceID:      cfg.DeviceID,
		UploadTimeout: cfg.UploadTimeout,
	}, syncer.WithLogger(opts.Logger))

	if opts.Pull {
		snap, err := rs.FetchSnapshot(ctx, cfg.UserID)
		if errors.Is(err, remote.ErrNoSnapshot) {
			return out.Success(SyncResult{Direction: "pull", Outcome: "empty"})
		}
		if err != nil {
			_ = out.Error(CodeRemote, err.Error(), nil)
			return WrapExitError(ExitFailure, "fetch failed", err)
		}
		outcome, err := eng.ApplyRemote(ctx, remote.Change{UserID: cfg.UserID, Snapshot: snap, ReceivedAt: opts.now()})
		if err != nil {
			_ = out.Error(CodeRemote, err.Error(), nil)
			return WrapExitError(ExitFailure, "apply failed", err)
		}
		return out.Success(SyncResult{Direction: "pull", Outcome: outcome.String(), Checksum: snap.Checksum})
	}

	if err := eng.Flush(ctx, cfg.UserID); err != nil {
		_ = out.Error(CodeRemote, err.Error(), nil)
		return WrapExitError(ExitFailure, "upload failed", err)
	}
	snap, err := a.store.Snapshot(ctx, cfg.UserID, cfg.DeviceID)
	if err != nil {
		return WrapExitError(ExitFailure, "read snapshot", err)
	}
	return out.Success(SyncResult{Direction: "push", Outcome: "uploaded", Checksum: snap.Checksum})
}
