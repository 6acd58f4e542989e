// Package store is the SQLite executor behind the engine.
//
// It runs compiled selects, returning rows as column maps, and applies
// ordered batches of per-table writes inside one transaction. The first
// insert of a batch without an identity generates one; later writes in the
// same batch that carry no identity use it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as TEXT so the driver hands them back unparsed.
package store
