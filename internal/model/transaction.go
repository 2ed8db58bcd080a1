package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType classifies a ledger transaction.
type TxType string

const (
	TxIncome   TxType = "income"
	TxExpense  TxType = "expense"
	TxTransfer TxType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	return t == TxIncome || t == TxExpense || t == TxTransfer
}

// Transaction is a ledger entry. With IsRecurring set it is a recurring
// source (a template whose Date is the anchor); with RecurSourceID set it is
// an occurrence generated from the source with that local id.
type Transaction struct {
	ID              int64              `json:"id"`
	SyncID          string             `json:"syncId"`
	MemberID        int64              `json:"memberId"`
	Type            TxType             `json:"type"`
	Amount          decimal.Decimal    `json:"amount"`
	CategoryID      int64              `json:"categoryId"`
	PaymentMethodID *int64             `json:"paymentMethodId,omitempty"`
	Memo            string             `json:"memo"`
	Date            Date               `json:"date"`
	IsRecurring     bool               `json:"isRecurring"`
	Recurrence      *RecurrencePattern `json:"recurrence,omitempty"`
	RecurSourceID   *int64             `json:"recurSourceId,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// IsOccurrence reports whether the transaction was generated from a source.
func (t *Transaction) IsOccurrence() bool {
	return !t.IsRecurring && t.RecurSourceID != nil
}

// Validate checks the fields every persisted transaction must carry.
func (t *Transaction) Validate() error {
	if t.SyncID == "" {
		return ErrMissingSyncID
	}
	if !t.Type.Valid() {
		return ErrInvalidTxType
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if t.IsRecurring && t.Recurrence == nil {
		return ErrRecurringSource
	}
	return nil
}

// NewOccurrence builds the occurrence of source due on date. The copy takes
// member, type, amount, category, payment method and memo as they are now;
// later edits to either record do not propagate.
func NewOccurrence(source *Transaction, date Date, syncID string, now time.Time) *Transaction {
	sourceID := source.ID
	occ := &Transaction{
		SyncID:        syncID,
		MemberID:      source.MemberID,
		Type:          source.Type,
		Amount:        source.Amount,
		CategoryID:    source.CategoryID,
		Memo:          source.Memo,
		Date:          date,
		IsRecurring:   false,
		RecurSourceID: &sourceID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if source.PaymentMethodID != nil {
		pm := *source.PaymentMethodID
		occ.PaymentMethodID = &pm
	}
	return occ
}
