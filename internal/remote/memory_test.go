package remote

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/model"
)

func testSnapshot(t *testing.T, userID, memo string) *model.Snapshot {
	t.Helper()
	rows := map[model.Table][]json.RawMessage{
		model.TableMembers: {json.RawMessage(`{"attrs":{"memo":"` + memo + `"},"id":1,"syncId":"m-1"}`)},
	}
	snap, err := model.NewSnapshot(userID, "dev", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), rows)
	require.NoError(t, err)
	return snap
}

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
		return Change{}
	}
}

func TestMemory_UploadAndFetch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.FetchSnapshot(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := testSnapshot(t, "u1", "a")
	require.NoError(t, m.UploadSnapshot(ctx, "u1", snap))

	got, err := m.FetchSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, got.Checksum)
	assert.Equal(t, 1, m.Uploads())

	// Wholesale replace.
	next := testSnapshot(t, "u1", "b")
	require.NoError(t, m.UploadSnapshot(ctx, "u1", next))
	got, err = m.FetchSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, next.Checksum, got.Checksum)
}

func TestMemory_UploadRejectsBadSnapshots(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.UploadSnapshot(ctx, "u2", testSnapshot(t, "u1", "a"))
	assert.ErrorIs(t, err, ErrUserMismatch)

	err = m.UploadSnapshot(ctx, "u1", nil)
	assert.ErrorIs(t, err, ErrUserMismatch)

	tampered := testSnapshot(t, "u1", "a")
	tampered.Checksum = "deadbeef"
	assert.Error(t, m.UploadSnapshot(ctx, "u1", tampered))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, m.UploadSnapshot(canceled, "u1", testSnapshot(t, "u1", "a")), context.Canceled)

	assert.Equal(t, 0, m.Uploads())
}

func TestMemory_SubscribeReceivesOwnUserOnly(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, m.UploadSnapshot(ctx, "u2", testSnapshot(t, "u2", "x")))
	snap := testSnapshot(t, "u1", "y")
	require.NoError(t, m.UploadSnapshot(ctx, "u1", snap))

	c := receive(t, ch)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, snap.Checksum, c.Snapshot.Checksum)
	assert.False(t, c.ReceivedAt.IsZero())
}

func TestMemory_SlowSubscriberKeepsLatest(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, "u1")
	require.NoError(t, err)

	var last *model.Snapshot
	for i := 0; i < subscriberBuffer+5; i++ {
		last = testSnapshot(t, "u1", string(rune('a'+i)))
		require.NoError(t, m.UploadSnapshot(ctx, "u1", last))
	}

	var got Change
	for i := 0; i < subscriberBuffer; i++ {
		got = receive(t, ch)
	}
	assert.Equal(t, last.Checksum, got.Snapshot.Checksum)
}

func TestMemory_SubscriptionEndsWithContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Subscribe(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscribers("u1"))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, m.Subscribers("u1"))
}
