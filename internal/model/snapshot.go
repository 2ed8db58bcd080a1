package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the full contents of the local store for one user, uploaded
// to the remote store as a wholesale replacement of the user's document.
type Snapshot struct {
	UserID   string                      `json:"userId"`
	DeviceID string                      `json:"deviceId,omitempty"`
	TakenAt  time.Time                   `json:"takenAt"`
	Tables   map[Table][]json.RawMessage `json:"tables"`
	Checksum string                      `json:"checksum"`
}

// NewSnapshot assembles a snapshot and computes its checksum.
// Every observed table is present in Tables, empty tables as [].
func NewSnapshot(userID, deviceID string, takenAt time.Time, tables map[Table][]json.RawMessage) (*Snapshot, error) {
	full := make(map[Table][]json.RawMessage, len(ObservedTables))
	for _, t := range ObservedTables {
		rows := tables[t]
		if rows == nil {
			rows = []json.RawMessage{}
		}
		full[t] = rows
	}
	sum, err := ChecksumTables(full)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		UserID:   userID,
		DeviceID: deviceID,
		TakenAt:  takenAt.UTC(),
		Tables:   full,
		Checksum: sum,
	}, nil
}

// ChecksumTables returns the content checksum of a table set. Only record
// content contributes; user, device and capture time do not, so the same
// data uploaded by two devices has the same checksum.
func ChecksumTables(tables map[Table][]json.RawMessage) (string, error) {
	doc := make(map[string]any, len(tables))
	for t, rows := range tables {
		list := make([]any, len(rows))
		for i, row := range rows {
			list[i] = json.RawMessage(row)
		}
		doc[string(t)] = list
	}
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("checksum tables: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// Verify recomputes the checksum and compares it with the stored one.
func (s *Snapshot) Verify() error {
	sum, err := ChecksumTables(s.Tables)
	if err != nil {
		return err
	}
	if sum != s.Checksum {
		return fmt.Errorf("snapshot checksum mismatch: have %s, computed %s", s.Checksum, sum)
	}
	return nil
}
