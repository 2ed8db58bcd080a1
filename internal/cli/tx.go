package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/recurrence"
)

// TxAddOptions holds flags for the tx add command.
type TxAddOptions struct {
	*RootOptions
	Type          string
	Amount        string
	Date          string
	Member        int64
	Category      int64
	PaymentMethod int64
	Memo          string
	Repeat        string
	Interval      int
	Until         string
}

// TxView is one transaction in command output.
type TxView struct {
	ID        int64                    `json:"id"`
	SyncID    string                   `json:"syncId"`
	Type      model.TxType             `json:"type"`
	Amount    string                   `json:"amount"`
	Date      string                   `json:"date"`
	Memo      string                   `json:"memo,omitempty"`
	Recurring *model.RecurrencePattern `json:"recurrence,omitempty"`
	SourceID  *int64                   `json:"recurSourceId,omitempty"`
}

func newTxView(tx *model.Transaction) TxView {
	return TxView{
		ID:        tx.ID,
		SyncID:    tx.SyncID,
		Type:      tx.Type,
		Amount:    tx.Amount.StringFixed(2),
		Date:      tx.Date.String(),
		Memo:      tx.Memo,
		Recurring: tx.Recurrence,
		SourceID:  tx.RecurSourceID,
	}
}

func (v TxView) Text() string {
	line := fmt.Sprintf("#%d %s %-8s %10s  %s", v.ID, v.Date, v.Type, v.Amount, v.Memo)
	if v.Recurring != nil {
		line += fmt.Sprintf("  [every %d %s]", v.Recurring.Interval, v.Recurring.Type)
	}
	if v.SourceID != nil {
		line += fmt.Sprintf("  (from #%d)", *v.SourceID)
	}
	return strings.TrimRight(line, " ")
}

// TxList is the output of tx list.
type TxList []TxView

func (l TxList) Text() string {
	if len(l) == 0 {
		return "no transactions"
	}
	lines := make([]string, len(l))
	for i, v := range l {
		lines[i] = v.Text()
	}
	return strings.Join(lines, "\n")
}

// NewTxCommand creates the tx command group.
func NewTxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
	}
	cmd.AddCommand(newTxAddCommand(rootOpts))
	cmd.AddCommand(newTxListCommand(rootOpts))
	return cmd
}

func newTxAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TxAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction",
		Long: `Add a transaction. With --repeat it becomes a recurring source whose
--date is the anchor; occurrences are created by "tally recur" or "tally run".

Example:
  tally tx add --amount 12.50 --memo lunch
  tally tx add --amount 950 --memo rent --date 2025-01-31 --repeat monthly
  tally tx add --type income --amount 3000 --repeat weekly --interval 2 --until 2025-12-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTxAdd(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Type, "type", string(model.TxExpense), "income|expense|transfer")
	f.StringVar(&opts.Amount, "amount", "", "decimal amount (required)")
	f.StringVar(&opts.Date, "date", "", "date or phrase (default: today)")
	f.Int64Var(&opts.Member, "member", 0, "member id")
	f.Int64Var(&opts.Category, "category", 0, "category id")
	f.Int64Var(&opts.PaymentMethod, "payment-method", 0, "payment method id")
	f.StringVar(&opts.Memo, "memo", "", "memo")
	f.StringVar(&opts.Repeat, "repeat", "", "daily|weekly|monthly|yearly")
	f.IntVar(&opts.Interval, "interval", 1, "repeat every N units")
	f.StringVar(&opts.Until, "until", "", "last date a repetition may fall on")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runTxAdd(cmd *cobra.Command, opts *TxAddOptions) error {
	out := opts.formatter(cmd)

	tx, err := opts.build()
	if err != nil {
		_ = out.Error(CodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid transaction", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.store.InsertTransaction(commandContext(cmd.Context()), tx)
	if err != nil {
		_ = out.Error(CodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "insert transaction", err)
	}
	tx.ID = id
	return out.Success(newTxView(tx))
}

// build turns the flags into a transaction ready for insertion.
func (o *TxAddOptions) build() (*model.Transaction, error) {
	amount, err := decimal.NewFromString(o.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAmount, o.Amount)
	}
	date, err := parseToday(o.Date, o.now())
	if err != nil {
		return nil, err
	}

	tx := &model.Transaction{
		SyncID:     model.UUIDv7Generator{}.Generate(),
		MemberID:   o.Member,
		Type:       model.TxType(o.Type),
		Amount:     amount,
		CategoryID: o.Category,
		Memo:       o.Memo,
		Date:       date,
	}
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidTxType, o.Type)
	}
	if o.PaymentMethod != 0 {
		pm := o.PaymentMethod
		tx.PaymentMethodID = &pm
	}

	if o.Repeat != "" {
		p := &model.RecurrencePattern{Type: model.PatternType(o.Repeat), Interval: o.Interval}
		if o.Until != "" {
			until, err := parseToday(o.Until, o.now())
			if err != nil {
				return nil, err
			}
			p.EndDate = &until
		}
		if err := recurrence.ValidatePattern(p); err != nil {
			return nil, err
		}
		tx.IsRecurring = true
		tx.Recurrence = p
	}
	return tx, nil
}

func newTxListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			txs, err := a.store.ListTransactions(commandContext(cmd.Context()))
			if err != nil {
				_ = rootOpts.formatter(cmd).Error(CodeStore, err.Error(), nil)
				return WrapExitError(ExitFailure, "list transactions", err)
			}
			list := make(TxList, len(txs))
			for i, tx := range txs {
				list[i] = newTxView(tx)
			}
			return rootOpts.formatter(cmd).Success(list)
		},
	}
}
