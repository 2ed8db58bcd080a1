// Package model defines the record types shared by the local store, the
// synchronization engine and the recurrence engine.
//
// This package contains type definitions and codecs only. All other internal
// packages import model; model imports nothing internal.
//
// Key design constraints:
//   - NO float types in persisted records - amounts are decimal strings
//   - syncId is assigned once and never rewritten
//   - Local ids are device-scoped; cross-device identity is syncId only
//   - All JSON tags use camelCase to match the remote document shape
package model
