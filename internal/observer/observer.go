// Package observer folds per-table mutation events into one "something
// changed" signal.
package observer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/tally/internal/bus"
	"github.com/roach88/tally/internal/model"
)

// ErrNoTables is returned when Watch is given an empty table list.
var ErrNoTables = errors.New("observer: no tables to watch")

// Observer holds one bus subscription per watched table and calls notify
// for every create, update or delete on any of them. The signal carries no
// payload: consumers only learn that local data changed.
type Observer struct {
	bus    *bus.Bus
	notify func()

	mu     sync.Mutex
	tokens []bus.Token

	signals atomic.Uint64
}

// Watch subscribes to every table in tables. notify runs synchronously in
// the goroutine that performed the write, so it must return quickly; the
// debounce scheduler's Notify is the intended consumer.
func Watch(b *bus.Bus, tables []model.Table, notify func()) (*Observer, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	if notify == nil {
		return nil, errors.New("observer: nil notify")
	}

	o := &Observer{bus: b, notify: notify}
	seen := make(map[model.Table]bool, len(tables))
	for _, t := range tables {
		if seen[t] {
			continue
		}
		seen[t] = true

		tok, err := b.Subscribe(t, o.handle)
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("watch %s: %w", t, err)
		}
		o.tokens = append(o.tokens, tok)
	}
	return o, nil
}

func (o *Observer) handle(bus.Event) {
	o.signals.Add(1)
	o.notify()
}

// Signals returns how many change signals have been emitted.
func (o *Observer) Signals() uint64 {
	return o.signals.Load()
}

// Tables returns the watched tables in subscription order.
func (o *Observer) Tables() []model.Table {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]model.Table, len(o.tokens))
	for i, tok := range o.tokens {
		out[i] = tok.Table()
	}
	return out
}

// Close removes every subscription. It is safe to call more than once.
func (o *Observer) Close() {
	o.mu.Lock()
	tokens := o.tokens
	o.tokens = nil
	o.mu.Unlock()

	for _, tok := range tokens {
		o.bus.Unsubscribe(tok)
	}
}
