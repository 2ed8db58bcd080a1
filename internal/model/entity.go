package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity is a record in one of the generic tables (members, categories,
// items, values, budgets, goals, payment methods). The core engines never
// look inside Attrs; they only move entities between stores.
type Entity struct {
	ID        int64           `json:"id"`
	SyncID    string          `json:"syncId"`
	Table     Table           `json:"-"`
	Attrs     json.RawMessage `json:"attrs"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Validate checks identity fields and that Attrs is a float-free JSON object.
func (e *Entity) Validate() error {
	if !e.Table.IsEntity() {
		return ErrInvalidTable
	}
	if e.SyncID == "" {
		return ErrMissingSyncID
	}
	if len(e.Attrs) == 0 {
		e.Attrs = json.RawMessage("{}")
	}
	canonical, err := CanonicalizeJSON(e.Attrs)
	if err != nil {
		return err
	}
	if canonical[0] != '{' {
		return fmt.Errorf("%w: attrs must be a JSON object", ErrInvalidAttrs)
	}
	return nil
}
