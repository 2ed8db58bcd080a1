package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a record with the requested id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrImmutableSyncID is returned when an update tries to change a syncId.
	ErrImmutableSyncID = errors.New("syncId is immutable")

	// ErrDuplicateSyncID is returned when a syncId is already taken in the table.
	ErrDuplicateSyncID = errors.New("duplicate syncId")
)

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
