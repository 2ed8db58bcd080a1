package syncer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies sync failures.
type ErrorKind string

const (
	// KindTransient marks an upload that failed or timed out. Nothing is
	// retried automatically; the next local mutation schedules a new flush.
	KindTransient ErrorKind = "transient"

	// KindSnapshot marks a failure reading the local store.
	KindSnapshot ErrorKind = "snapshot"

	// KindApply marks a remote change that could not be applied locally.
	KindApply ErrorKind = "apply"
)

// ErrNoUser is returned when a flush is requested without a user id.
var ErrNoUser = errors.New("no user id")

// SyncError is a failed flush or remote apply.
type SyncError struct {
	Kind   ErrorKind
	UserID string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s (user %s): %v", e.Kind, e.UserID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient upload failure.
func IsTransient(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Kind == KindTransient
}
