package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/model"
)

// formatTime renders a timestamp as RFC 3339 UTC text for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// marshalPattern converts a recurrence pattern to JSON TEXT, or NULL.
func marshalPattern(p *model.RecurrencePattern) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := model.MarshalCanonical(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal recurrence: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalPattern parses a stored recurrence pattern. NULL yields nil.
func unmarshalPattern(ns sql.NullString) (*model.RecurrencePattern, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var p model.RecurrencePattern
	if err := json.Unmarshal([]byte(ns.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshal recurrence: %w", err)
	}
	return &p, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", model.ErrInvalidAmount, s)
	}
	return d, nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// rowJSON renders a record as canonical JSON for snapshots.
func rowJSON(v any) (json.RawMessage, error) {
	data, err := model.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
