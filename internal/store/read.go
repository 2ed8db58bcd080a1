package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tally/internal/model"
)

const transactionColumns = `id, sync_id, member_id, type, amount, category_id, payment_method_id,
	memo, date, is_recurring, recurrence, recur_source_id, created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetTransaction returns the transaction with the given id.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	tx, err := s.scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get transaction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return tx, nil
}

// ListTransactions returns every transaction ordered by id.
func (s *Store) ListTransactions(ctx context.Context) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.db, "SELECT "+transactionColumns+" FROM transactions ORDER BY id ASC")
}

// ListRecurringSources returns every recurring source ordered by id.
//
// A source whose stored pattern is not valid JSON is returned with a nil
// Recurrence (and a logged warning) rather than failing the whole list, so
// one damaged row cannot stop processing of the others.
func (s *Store) ListRecurringSources(ctx context.Context) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.db,
		"SELECT "+transactionColumns+" FROM transactions WHERE is_recurring = 1 ORDER BY id ASC")
}

// ListOccurrences returns the occurrences generated from sourceID ordered
// by date, then id.
func (s *Store) ListOccurrences(ctx context.Context, sourceID int64) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.db,
		"SELECT "+transactionColumns+" FROM transactions WHERE recur_source_id = ? ORDER BY date ASC, id ASC",
		sourceID)
}

// LatestOccurrenceDate returns the greatest date among the occurrences of
// sourceID. The boolean is false when the source has none.
func (s *Store) LatestOccurrenceDate(ctx context.Context, sourceID int64) (model.Date, bool, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(date) FROM transactions WHERE recur_source_id = ?", sourceID,
	).Scan(&latest)
	if err != nil {
		return model.Date{}, false, fmt.Errorf("latest occurrence of %d: %w", sourceID, err)
	}
	if !latest.Valid {
		return model.Date{}, false, nil
	}
	d, err := model.ParseDate(latest.String)
	if err != nil {
		return model.Date{}, false, fmt.Errorf("latest occurrence of %d: %w", sourceID, err)
	}
	return d, true, nil
}

// GetEntity returns the entity with the given id from table.
func (s *Store) GetEntity(ctx context.Context, t model.Table, id int64) (*model.Entity, error) {
	if !t.IsEntity() {
		return nil, fmt.Errorf("get %q: %w", t, model.ErrInvalidTable)
	}
	table, _ := quoteTable(t)
	row := s.db.QueryRowContext(ctx,
		"SELECT id, sync_id, attrs, created_at, updated_at FROM "+table+" WHERE id = ?", id)
	e, err := scanEntity(row, t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s %d: %w", t, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", t, id, err)
	}
	return e, nil
}

// ListEntities returns every entity in table ordered by id.
func (s *Store) ListEntities(ctx context.Context, t model.Table) ([]*model.Entity, error) {
	return s.queryEntities(ctx, s.db, t)
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, t model.Table) (int, error) {
	table, err := quoteTable(t)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	return n, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]*model.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []*model.Transaction{}
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (s *Store) queryEntities(ctx context.Context, q querier, t model.Table) ([]*model.Entity, error) {
	if !t.IsEntity() {
		return nil, fmt.Errorf("list %q: %w", t, model.ErrInvalidTable)
	}
	table, _ := quoteTable(t)
	rows, err := q.QueryContext(ctx,
		"SELECT id, sync_id, attrs, created_at, updated_at FROM "+table+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t, err)
	}
	defer rows.Close()

	out := []*model.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows, t)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t, err)
	}
	return out, nil
}

func (s *Store) scanTransaction(row scanner) (*model.Transaction, error) {
	var (
		tx            model.Transaction
		txType        string
		amount        string
		paymentMethod sql.NullInt64
		recurrence    sql.NullString
		recurSource   sql.NullInt64
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(
		&tx.ID,
		&tx.SyncID,
		&tx.MemberID,
		&txType,
		&amount,
		&tx.CategoryID,
		&paymentMethod,
		&tx.Memo,
		&tx.Date,
		&tx.IsRecurring,
		&recurrence,
		&recurSource,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	tx.Type = model.TxType(txType)
	if tx.Amount, err = parseAmount(amount); err != nil {
		return nil, fmt.Errorf("scan transaction %d: %w", tx.ID, err)
	}
	tx.PaymentMethodID = intPtr(paymentMethod)
	tx.RecurSourceID = intPtr(recurSource)
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("scan transaction %d: %w", tx.ID, err)
	}
	if tx.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("scan transaction %d: %w", tx.ID, err)
	}

	tx.Recurrence, err = unmarshalPattern(recurrence)
	if err != nil {
		s.logger.Warn("unreadable recurrence pattern",
			slog.Int64("transaction_id", tx.ID),
			slog.String("error", err.Error()))
		tx.Recurrence = nil
	}

	return &tx, nil
}

func scanEntity(row scanner, t model.Table) (*model.Entity, error) {
	var (
		e         = model.Entity{Table: t}
		attrs     string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&e.ID, &e.SyncID, &attrs, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan %s: %w", t, err)
	}
	e.Attrs = []byte(attrs)

	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("scan %s %d: %w", t, e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("scan %s %d: %w", t, e.ID, err)
	}
	return &e, nil
}
