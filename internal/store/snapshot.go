package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/bus"
	"github.com/roach88/tally/internal/model"
)

// ToArray returns every row of table as canonical JSON, ordered by id.
func (s *Store) ToArray(ctx context.Context, t model.Table) ([]json.RawMessage, error) {
	return s.toArray(ctx, s.db, t)
}

func (s *Store) toArray(ctx context.Context, q querier, t model.Table) ([]json.RawMessage, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("to array %q: %w", t, model.ErrInvalidTable)
	}

	var records []any
	if t == model.TableTransactions {
		txs, err := s.queryTransactions(ctx, q, "SELECT "+transactionColumns+" FROM transactions ORDER BY id ASC")
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			records = append(records, tx)
		}
	} else {
		entities, err := s.queryEntities(ctx, q, t)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			records = append(records, e)
		}
	}

	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		row, err := rowJSON(r)
		if err != nil {
			return nil, fmt.Errorf("to array %s: %w", t, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Snapshot reads every observed table inside one transaction and returns
// the result as a checksummed snapshot for userID.
func (s *Store) Snapshot(ctx context.Context, userID, deviceID string) (*model.Snapshot, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: begin: %w", err)
	}
	defer dbTx.Rollback()

	tables := make(map[model.Table][]json.RawMessage, len(model.ObservedTables))
	for _, t := range model.ObservedTables {
		rows, err := s.toArray(ctx, dbTx, t)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		tables[t] = rows
	}

	snap, err := model.NewSnapshot(userID, deviceID, s.timestamp(), tables)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// ReplaceAll clears each table present in tables and bulk-inserts the given
// rows, keeping their ids and syncIds. All tables are replaced in a single
// transaction: either every table is replaced or none is. Tables absent from
// the map are left untouched.
//
// One OpUpdate event (ID 0) is published per replaced table after commit.
func (s *Store) ReplaceAll(ctx context.Context, tables map[model.Table][]json.RawMessage) error {
	for t := range tables {
		if !t.Valid() {
			return fmt.Errorf("replace all %q: %w", t, model.ErrInvalidTable)
		}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace all: begin: %w", err)
	}
	defer dbTx.Rollback()

	var replaced []model.Table
	for _, t := range model.ObservedTables {
		rows, ok := tables[t]
		if !ok {
			continue
		}
		if err := replaceTable(ctx, dbTx, t, rows); err != nil {
			return fmt.Errorf("replace all: %w", err)
		}
		replaced = append(replaced, t)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("replace all: commit: %w", err)
	}

	for _, t := range replaced {
		s.publish(t, bus.OpUpdate, 0)
	}
	return nil
}

func replaceTable(ctx context.Context, dbTx *sql.Tx, t model.Table, rows []json.RawMessage) error {
	table, _ := quoteTable(t)
	if _, err := dbTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", t, err)
	}

	for i, raw := range rows {
		var err error
		if t == model.TableTransactions {
			err = insertTransactionRow(ctx, dbTx, raw)
		} else {
			err = insertEntityRow(ctx, dbTx, t, raw)
		}
		if err != nil {
			return fmt.Errorf("%s row %d: %w", t, i, err)
		}
	}
	return nil
}

func insertTransactionRow(ctx context.Context, dbTx *sql.Tx, raw json.RawMessage) error {
	var tx model.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	// A source whose pattern could not be read on the sending device arrives
	// without one. It is kept as is; recurrence skips it.
	if err := tx.Validate(); err != nil && !errors.Is(err, model.ErrRecurringSource) {
		return err
	}
	pattern, err := marshalPattern(tx.Recurrence)
	if err != nil {
		return err
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, sync_id, member_id, type, amount, category_id, payment_method_id, memo,
		 date, is_recurring, recurrence, recur_source_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.SyncID,
		tx.MemberID,
		string(tx.Type),
		tx.Amount.String(),
		tx.CategoryID,
		nullInt(tx.PaymentMethodID),
		tx.Memo,
		tx.Date,
		tx.IsRecurring,
		pattern,
		nullInt(tx.RecurSourceID),
		formatTime(tx.CreatedAt),
		formatTime(tx.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", tx.SyncID, ErrDuplicateSyncID)
		}
		return err
	}
	return nil
}

func insertEntityRow(ctx context.Context, dbTx *sql.Tx, t model.Table, raw json.RawMessage) error {
	e := model.Entity{Table: t}
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	attrs, err := model.CanonicalizeJSON(e.Attrs)
	if err != nil {
		return err
	}

	table, _ := quoteTable(t)
	_, err = dbTx.ExecContext(ctx,
		"INSERT INTO "+table+" (id, sync_id, attrs, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		e.ID, e.SyncID, string(attrs), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", e.SyncID, ErrDuplicateSyncID)
		}
		return err
	}
	return nil
}
