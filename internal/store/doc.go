// Package store provides the SQLite-backed local store.
//
// The local store is authoritative on the running device. It holds one table
// per record kind (see model.ObservedTables): seven generic entity tables
// and the typed transactions table.
//
// Every successful write publishes a bus.Event after the write commits, so
// the change observer sees exactly the mutations that became durable.
// Bulk replacement (ReplaceAll) publishes one event per replaced table.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as RFC 3339 UTC text and dates as YYYY-MM-DD text.
// Rows exported by ToArray and Snapshot are canonical JSON (RFC 8785), so
// identical content always yields identical bytes.
package store
