package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/bus"
	"github.com/roach88/tally/internal/debounce"
	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/observer"
	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/store"
)

// device wires one replica the way the run command does:
// store -> bus -> observer -> scheduler -> engine -> remote.
type device struct {
	store  *store.Store
	engine *Engine
	sched  *debounce.Scheduler
}

func startDevice(t *testing.T, ctx context.Context, mem *remote.Memory, deviceID string) *device {
	t.Helper()
	b := bus.New()
	s := createTestStore(t, store.WithBus(b))
	eng := New(s, mem, Config{UserID: testUser, DeviceID: deviceID}, WithLogger(quietLogger(nil)))
	sched := debounce.New(30*time.Millisecond, eng.FlushLogged)
	obs, err := observer.Watch(b, model.ObservedTables, sched.Notify)
	require.NoError(t, err)

	go func() { _ = eng.Listen(ctx, mem) }()
	require.Eventually(t, func() bool { return mem.Subscribers(testUser) > 0 }, 2*time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		obs.Close()
		sched.Stop()
	})
	return &device{store: s, engine: eng, sched: sched}
}

func checksum(t *testing.T, s *store.Store) string {
	t.Helper()
	snap, err := s.Snapshot(context.Background(), testUser, "")
	require.NoError(t, err)
	return snap.Checksum
}

func TestIntegration_BurstUploadsOnceAndConverges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := remote.NewMemory()
	a := startDevice(t, ctx, mem, "dev-a")

	for i := 0; i < 5; i++ {
		addExpense(t, a.store, "burst-"+string(rune('a'+i)), "3")
	}

	require.Eventually(t, func() bool { return mem.Uploads() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, mem.Uploads(), "one burst, one upload")

	doc, err := mem.FetchSnapshot(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, checksum(t, a.store), doc.Checksum)
	assert.Len(t, doc.Tables[model.TableTransactions], 5)
}

func TestIntegration_TwoDevicesConvergeWithoutEchoLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := remote.NewMemory()
	a := startDevice(t, ctx, mem, "dev-a")
	b := startDevice(t, ctx, mem, "dev-b")

	addExpense(t, a.store, "from-a", "12.50")

	require.Eventually(t, func() bool {
		n, err := b.store.Count(ctx, model.TableTransactions)
		return err == nil && n == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Let B's re-upload of identical content settle, then check quiescence.
	require.Eventually(t, func() bool {
		return a.sched.State() == debounce.StateIdle && b.sched.State() == debounce.StateIdle
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	settled := mem.Uploads()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, settled, mem.Uploads(), "echoes do not trigger further uploads")
	assert.LessOrEqual(t, settled, 2)

	assert.Equal(t, checksum(t, a.store), checksum(t, b.store))
	assert.GreaterOrEqual(t, a.engine.Stats().Echoes+a.engine.Stats().DroppedPaused, int64(1))
}
