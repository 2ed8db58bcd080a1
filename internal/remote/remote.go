// Package remote defines the contract between the synchronization engine
// and a remote store, plus an in-memory implementation.
//
// A remote store keeps one document per user: the latest full snapshot.
// Uploading replaces that document wholesale. Subscribers receive every
// accepted snapshot as a Change.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/tally/internal/model"
)

var (
	// ErrNoSnapshot is returned when a user has no document yet.
	ErrNoSnapshot = errors.New("no snapshot for user")

	// ErrUserMismatch is returned when a snapshot is uploaded under another user's id.
	ErrUserMismatch = errors.New("snapshot user does not match")
)

// Change is one remote update delivered to a subscriber.
type Change struct {
	UserID     string          `json:"userId"`
	Snapshot   *model.Snapshot `json:"snapshot"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Uploader replaces a user's remote document.
type Uploader interface {
	UploadSnapshot(ctx context.Context, userID string, snap *model.Snapshot) error
}

// Subscriber streams remote changes for a user. The channel is closed when
// ctx is done or the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan Change, error)
}

// Fetcher reads a user's current remote document.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, userID string) (*model.Snapshot, error)
}

// Store is a full remote store.
type Store interface {
	Uploader
	Subscriber
	Fetcher
}

// checkUser verifies the snapshot belongs to userID.
func checkUser(userID string, snap *model.Snapshot) error {
	if snap == nil || snap.UserID != userID {
		return ErrUserMismatch
	}
	return nil
}

// CheckUpload validates an upload request: the snapshot must belong to
// userID and its checksum must match its content.
func CheckUpload(userID string, snap *model.Snapshot) error {
	if err := checkUser(userID, snap); err != nil {
		return err
	}
	return snap.Verify()
}
