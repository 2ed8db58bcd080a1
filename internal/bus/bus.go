// Package bus is the in-process event bus that carries local store mutations
// to whoever needs to react to them.
//
// Subscriptions are per table. Subscribe returns a Token; passing the token
// to Unsubscribe removes exactly that handler. Handlers run synchronously in
// the publisher's goroutine, in subscription order, so a handler must not
// block.
package bus

import (
	"fmt"
	"sync"

	"github.com/roach88/tally/internal/model"
)

// Op is the kind of mutation an event reports.
type Op int

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Event describes one mutation of one table. ID is the local id of the
// affected record, or 0 for bulk operations that touch the whole table.
type Event struct {
	Table model.Table
	Op    Op
	ID    int64
}

// Handler receives events for the table it subscribed to.
type Handler func(Event)

// Token identifies one subscription.
type Token struct {
	id    uint64
	table model.Table
}

// Table returns the table the subscription listens on.
func (t Token) Table() model.Table { return t.table }

type subscriber struct {
	id uint64
	fn Handler
}

// Bus routes events to per-table subscribers.
//
// Thread-safety: all methods are safe for concurrent use. Publish copies the
// handler list before calling out, so handlers may subscribe or unsubscribe.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[model.Table][]subscriber
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[model.Table][]subscriber)}
}

// Subscribe registers h for events on table.
func (b *Bus) Subscribe(table model.Table, h Handler) (Token, error) {
	if !table.Valid() {
		return Token{}, fmt.Errorf("subscribe %q: %w", table, model.ErrInvalidTable)
	}
	if h == nil {
		return Token{}, fmt.Errorf("subscribe %q: nil handler", table)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	tok := Token{id: b.next, table: table}
	b.subs[table] = append(b.subs[table], subscriber{id: tok.id, fn: h})
	return tok, nil
}

// Unsubscribe removes the subscription identified by tok. It reports false
// if the token was already removed.
func (b *Bus) Unsubscribe(tok Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[tok.table]
	for i, s := range list {
		if s.id == tok.id {
			b.subs[tok.table] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers ev to every current subscriber of ev.Table.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[ev.Table]...)
	b.mu.RUnlock()

	for _, s := range list {
		s.fn(ev)
	}
}

// Subscribers returns the number of live subscriptions on table.
func (b *Bus) Subscribers(table model.Table) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[table])
}
