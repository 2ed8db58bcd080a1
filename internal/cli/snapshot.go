package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/model"
)

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the local snapshot",
		Long: `Print the full local snapshot, exactly as it would be uploaded:
every observed table as an array of canonical JSON rows plus the content
checksum.

Example:
  tally snapshot --user alice > backup.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, rootOpts)
		},
	}
}

func runSnapshot(cmd *cobra.Command, opts *RootOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.store.Snapshot(commandContext(cmd.Context()), opts.Config.UserID, opts.Config.DeviceID)
	if err != nil {
		_ = opts.formatter(cmd).Error(CodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "read snapshot", err)
	}
	return opts.formatter(cmd).Success(snapshotView{snap})
}

// snapshotView renders a snapshot as indented JSON in text mode.
type snapshotView struct {
	*model.Snapshot
}

func (v snapshotView) Text() string {
	data, err := json.MarshalIndent(v.Snapshot, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
