package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/bus"
	"github.com/roach88/tally/internal/model"
)

// InsertTransaction inserts tx and returns its new local id, which is also
// stored in tx.ID. Zero timestamps are filled from the store clock.
func (s *Store) InsertTransaction(ctx context.Context, tx *model.Transaction) (int64, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.timestamp()
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}
	if err := tx.Validate(); err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	pattern, err := marshalPattern(tx.Recurrence)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(sync_id, member_id, type, amount, category_id, payment_method_id, memo,
		 date, is_recurring, recurrence, recur_source_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
			return 0, fmt.Errorf("insert transaction %s: %w", tx.SyncID, ErrDuplicateSyncID)
		}
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	tx.ID = id

	s.publish(model.TableTransactions, bus.OpCreate, id)
	return id, nil
}

// UpdateTransaction overwrites the mutable fields of the transaction with
// tx.ID and bumps UpdatedAt. The stored syncId must match tx.SyncID.
func (s *Store) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if err := s.checkSyncID(ctx, model.TableTransactions, tx.ID, tx.SyncID); err != nil {
		return fmt.Errorf("update transaction %d: %w", tx.ID, err)
	}

	pattern, err := marshalPattern(tx.Recurrence)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	tx.UpdatedAt = s.timestamp()

	_, err = s.db.ExecContext(ctx, `
		UPDATE transactions SET
			member_id = ?, type = ?, amount = ?, category_id = ?,
			payment_method_id = ?, memo = ?, date = ?, is_recurring = ?,
			recurrence = ?, recur_source_id = ?, updated_at = ?
		WHERE id = ?
	`,
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
		formatTime(tx.UpdatedAt),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	s.publish(model.TableTransactions, bus.OpUpdate, tx.ID)
	return nil
}

// DeleteTransaction removes the transaction with the given id. Occurrences
// generated from it are left alone.
func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, model.TableTransactions, id)
}

// InsertEntity inserts e into e.Table and returns its new local id, which is
// also stored in e.ID.
func (s *Store) InsertEntity(ctx context.Context, e *model.Entity) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	attrs, err := model.CanonicalizeJSON(e.Attrs)
	if err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.timestamp()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	table, _ := quoteTable(e.Table)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+table+" (sync_id, attrs, created_at, updated_at) VALUES (?, ?, ?, ?)",
		e.SyncID, string(attrs), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert %s %s: %w", e.Table, e.SyncID, ErrDuplicateSyncID)
		}
		return 0, fmt.Errorf("insert %s: %w", e.Table, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", e.Table, err)
	}
	e.ID = id
	e.Attrs = attrs

	s.publish(e.Table, bus.OpCreate, id)
	return id, nil
}

// UpdateEntity replaces the attributes of the entity with e.ID and bumps
// UpdatedAt. The stored syncId must match e.SyncID.
func (s *Store) UpdateEntity(ctx context.Context, e *model.Entity) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if err := s.checkSyncID(ctx, e.Table, e.ID, e.SyncID); err != nil {
		return fmt.Errorf("update %s %d: %w", e.Table, e.ID, err)
	}
	attrs, err := model.CanonicalizeJSON(e.Attrs)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	e.Attrs = attrs
	e.UpdatedAt = s.timestamp()

	table, _ := quoteTable(e.Table)
	if _, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET attrs = ?, updated_at = ? WHERE id = ?",
		string(attrs), formatTime(e.UpdatedAt), e.ID,
	); err != nil {
		return fmt.Errorf("update %s: %w", e.Table, err)
	}

	s.publish(e.Table, bus.OpUpdate, e.ID)
	return nil
}

// DeleteEntity removes the entity with the given id from table.
func (s *Store) DeleteEntity(ctx context.Context, table model.Table, id int64) error {
	if !table.IsEntity() {
		return fmt.Errorf("delete %q: %w", table, model.ErrInvalidTable)
	}
	return s.deleteRow(ctx, table, id)
}

func (s *Store) deleteRow(ctx context.Context, t model.Table, id int64) error {
	table, err := quoteTable(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", t, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", t, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %d: %w", t, id, ErrNotFound)
	}

	s.publish(t, bus.OpDelete, id)
	return nil
}

// checkSyncID verifies that the row with id exists and carries syncID.
func (s *Store) checkSyncID(ctx context.Context, t model.Table, id int64, syncID string) error {
	table, err := quoteTable(t)
	if err != nil {
		return err
	}
	var stored string
	err = s.db.QueryRowContext(ctx, "SELECT sync_id FROM "+table+" WHERE id = ?", id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if stored != syncID {
		return fmt.Errorf("%w: stored %s, got %s", ErrImmutableSyncID, stored, syncID)
	}
	return nil
}
