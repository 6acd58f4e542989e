package testutil

import (
	"context"
	"sync"

	"github.com/roach88/lineage/internal/store"
)

// Executor is the storage contract RecordingExecutor wraps.
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) ([]store.Row, error)
	Manipulate(ctx context.Context, writes []store.TableWrite) (int64, error)
}

// QueryCall is one recorded Query.
type QueryCall struct {
	SQL  string
	Args []any
}

// RecordingExecutor records every call before passing it on. With no inner
// executor, queries return no rows and writes return ID 1.
type RecordingExecutor struct {
	Inner Executor

	mu      sync.Mutex
	queries []QueryCall
	batches [][]store.TableWrite
}

// NewRecordingExecutor wraps inner, which may be nil.
func NewRecordingExecutor(inner Executor) *RecordingExecutor {
	return &RecordingExecutor{Inner: inner}
}

func (r *RecordingExecutor) Query(ctx context.Context, sql string, args ...any) ([]store.Row, error) {
	r.mu.Lock()
	r.queries = append(r.queries, QueryCall{SQL: sql, Args: args})
	r.mu.Unlock()
	if r.Inner == nil {
		return nil, nil
	}
	return r.Inner.Query(ctx, sql, args...)
}

func (r *RecordingExecutor) Manipulate(ctx context.Context, writes []store.TableWrite) (int64, error) {
	r.mu.Lock()
	r.batches = append(r.batches, writes)
	r.mu.Unlock()
	if r.Inner == nil {
		return 1, nil
	}
	return r.Inner.Manipulate(ctx, writes)
}

// EnsureTables passes through when the inner executor can create tables.
func (r *RecordingExecutor) EnsureTables(ctx context.Context, defs []store.TableDef) error {
	if c, ok := r.Inner.(interface {
		EnsureTables(context.Context, []store.TableDef) error
	}); ok {
		return c.EnsureTables(ctx, defs)
	}
	return nil
}

// Queries returns the recorded queries.
func (r *RecordingExecutor) Queries() []QueryCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]QueryCall(nil), r.queries...)
}

// Batches returns the recorded write batches.
func (r *RecordingExecutor) Batches() [][]store.TableWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]store.TableWrite(nil), r.batches...)
}

// Reset forgets everything recorded so far.
func (r *RecordingExecutor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = nil
	r.batches = nil
}
