package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/recurrence"
)

// RecurOptions holds flags for the recur command.
type RecurOptions struct {
	*RootOptions
	Today string
}

// RecurResult is the output of the recur command.
type RecurResult struct {
	Today   string         `json:"today"`
	Created int            `json:"created"`
	Sources []RecurSource  `json:"sources"`
	Skipped []RecurSkipped `json:"skipped,omitempty"`
}

// RecurSource is one processed source in RecurResult.
type RecurSource struct {
	SourceID int64  `json:"sourceId"`
	SyncID   string `json:"syncId"`
	Created  int    `json:"created"`
	Capped   bool   `json:"capped,omitempty"`
}

// RecurSkipped is one skipped source in RecurResult.
type RecurSkipped struct {
	SourceID int64  `json:"sourceId"`
	SyncID   string `json:"syncId"`
	Error    string `json:"error"`
}

func (r RecurResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d occurrence(s) created up to %s", r.Created, r.Today)
	for _, s := range r.Sources {
		if s.Created == 0 && !s.Capped {
			continue
		}
		fmt.Fprintf(&b, "\n  source %d: %d", s.SourceID, s.Created)
		if s.Capped {
			b.WriteString(" (capped, rerun to continue)")
		}
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "\n  skipped source %d: %s", s.SourceID, s.Error)
	}
	return b.String()
}

func newRecurResult(rep *recurrence.Report) RecurResult {
	res := RecurResult{
		Today:   rep.Today.String(),
		Created: rep.Created,
		Sources: make([]RecurSource, 0, len(rep.Sources)),
	}
	for _, s := range rep.Sources {
		res.Sources = append(res.Sources, RecurSource{SourceID: s.SourceID, SyncID: s.SyncID, Created: s.Created, Capped: s.Capped})
	}
	for _, s := range rep.Skipped {
		res.Skipped = append(res.Skipped, RecurSkipped{SourceID: s.SourceID, SyncID: s.SyncID, Error: s.Err.Error()})
	}
	return res
}

// NewRecurCommand creates the recur command.
func NewRecurCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecurOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recur",
		Short: "Generate due occurrences of recurring transactions",
		Long: `Generate every occurrence of every recurring transaction that is due on
or before today. Running it again the same day creates nothing.

--today accepts an ISO date or a phrase such as "yesterday" or "next friday".

Example:
  tally recur
  tally recur --today 2025-04-15
  tally recur --today "last monday" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecur(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Today, "today", "", "date to generate up to (default: current date)")
	return cmd
}

func runRecur(cmd *cobra.Command, opts *RecurOptions) error {
	out := opts.formatter(cmd)

	today, err := parseToday(opts.Today, opts.now())
	if err != nil {
		_ = out.Error(CodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --today", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	eng := recurrence.New(a.store,
		recurrence.WithClock(opts.now),
		recurrence.WithLogger(opts.Logger),
		recurrence.WithMaxPerSource(opts.Config.Recurrence.MaxPerSource))

	rep, err := eng.Process(commandContext(cmd.Context()), today)
	if err != nil {
		_ = out.Error(CodeRecurrence, err.Error(), nil)
		return WrapExitError(ExitFailure, "recurrence run aborted", err)
	}
	return out.Success(newRecurResult(rep))
}

// parseToday resolves the --today flag. Empty means the current date.
func parseToday(s string, now time.Time) (model.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.DateOf(now), nil
	}
	if d, err := model.ParseDate(s); err == nil {
		return d, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return model.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	if r == nil {
		return model.Date{}, fmt.Errorf("parse date %q: not a date", s)
	}
	return model.DateOf(r.Time), nil
}
