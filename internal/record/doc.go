// Package record implements the in-memory form of one logical entity:
// current values, the last persisted snapshot, and a per-field change
// severity.
//
// A Record knows nothing about storage. The engine hydrates it from rows,
// asks it what changed, and tells it when a write succeeded.
package record
