package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/remote"
)

// RootOptions holds global flags and the state resolved from them.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	ConfigDir string
	DBPath    string
	UserID    string
	DeviceID  string
	LogFile   string

	// Remote overrides the configured remote store (for testing).
	Remote remote.Store
	// Now overrides the wall clock (for testing).
	Now func() time.Time

	Config *Config
	Logger *slog.Logger

	logCloser io.Closer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tally CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "tally - local-first household ledger",
		Long: `A local-first household ledger. Every change lands in a local SQLite
database first; a background engine uploads a full snapshot to the remote
store once edits settle and applies snapshots pushed by other devices.
Recurring transactions are expanded into dated occurrences up to today.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := LoadConfig(opts.ConfigDir, cmd)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg
			opts.Logger, opts.logCloser = newLogger(cfg, opts, cmd.ErrOrStderr())
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logCloser != nil {
				return opts.logCloser.Close()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigDir, "config", defaultConfigDir(), "configuration directory")
	pf.StringVar(&opts.DBPath, "db", "", "path to SQLite database (overrides db_path)")
	pf.StringVar(&opts.UserID, "user", "", "user id (overrides user_id)")
	pf.StringVar(&opts.DeviceID, "device", "", "device id (overrides device_id)")
	pf.StringVar(&opts.LogFile, "log-file", "", "rotate logs into this file (overrides log_file)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRecurCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewTxCommand(opts))
	cmd.AddCommand(NewMirrorCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
