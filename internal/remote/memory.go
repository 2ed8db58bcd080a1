package remote

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/tally/internal/model"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls further behind loses the oldest pending change; only the
// latest snapshot matters.
const subscriberBuffer = 16

// Memory is an in-process remote store. It backs tests, the "memory"
// remote kind and the reference mirror server.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	docs map[string]*model.Snapshot
	subs map[string]map[chan Change]struct{}
	now  func() time.Time

	uploads int
}

// NewMemory creates an empty in-memory remote store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*model.Snapshot),
		subs: make(map[string]map[chan Change]struct{}),
		now:  time.Now,
	}
}

// UploadSnapshot stores snap as the user's document and notifies every
// subscriber of that user, including the uploader's own subscription.
func (m *Memory) UploadSnapshot(ctx context.Context, userID string, snap *model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckUpload(userID, snap); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[userID] = snap
	m.uploads++

	change := Change{UserID: userID, Snapshot: snap, ReceivedAt: m.now().UTC()}
	for ch := range m.subs[userID] {
		deliver(ch, change)
	}
	return nil
}

// deliver sends c without blocking, dropping the oldest queued change when
// the channel is full.
func deliver(ch chan Change, c Change) {
	for {
		select {
		case ch <- c:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// FetchSnapshot returns the user's document or ErrNoSnapshot.
func (m *Memory) FetchSnapshot(ctx context.Context, userID string) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.docs[userID]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Subscribe returns a channel of changes for userID, closed when ctx ends.
func (m *Memory) Subscribe(ctx context.Context, userID string) (<-chan Change, error) {
	ch := make(chan Change, subscriberBuffer)

	m.mu.Lock()
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[chan Change]struct{})
	}
	m.subs[userID][ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[userID], ch)
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Uploads returns the number of accepted uploads.
func (m *Memory) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Subscribers returns the number of live subscriptions for userID.
func (m *Memory) Subscribers(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[userID])
}
