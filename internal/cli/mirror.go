package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/remote/httpremote"
)

// MirrorOptions holds flags for the mirror command.
type MirrorOptions struct {
	*RootOptions
	Addr  string
	Token string
}

// NewMirrorCommand creates the mirror command.
func NewMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Serve an in-memory remote store over HTTP",
		Long: `Serve the snapshot protocol from memory: uploads replace the user's
document and are pushed to every WebSocket subscriber of that user.
Intended for local testing and small private setups; nothing is persisted.

Example:
  tally mirror --addr :8787 --token s3cret
  TALLY_REMOTE_KIND=http TALLY_REMOTE_URL=http://localhost:8787 tally run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()

			token := opts.Token
			if token == "" {
				token = opts.Config.Remote.Token
			}
			srv := httpremote.NewServer(nil,
				httpremote.WithToken(token),
				httpremote.WithServerLogger(opts.Logger))
			if err := srv.ListenAndServe(ctx, opts.Addr); err != nil {
				return WrapExitError(ExitFailure, "mirror failed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&opts.Token, "token", "", "required bearer token (default: remote.token)")
	return cmd
}
