package harness

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
	"github.com/roach88/lineage/internal/testutil"
)

// DefaultScopeID is used when a scenario names no scope.
const DefaultScopeID = "scenario-default"

// Option configures a run.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger routes engine and store logs to l. Runs are silent by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Harness executes one scenario against a fresh store.
type Harness struct {
	store  *store.Store
	exec   *testutil.RecordingExecutor
	engine *engine.Engine
	refs   map[string]*record.Record
	logger *zap.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock and a fixed scope identifier, so traces are reproducible.
//
// Execution flow:
//  1. Register the scenario's classes and create their tables
//  2. Execute steps, recording the writes each one issues
//  3. Evaluate assertions against the trace and the database
//
// A step that fails unexpectedly stops the run; assertions are skipped.
// The returned error is reserved for setup failures.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var regOpts []schema.Option
	if scenario.BaseClass != "" {
		regOpts = append(regOpts, schema.WithRootClass(scenario.BaseClass))
	}
	reg := schema.NewRegistry(regOpts...)
	if err := reg.Register(scenario.Classes...); err != nil {
		return nil, errors.Wrap(err, "register classes")
	}

	st, err := store.Open(":memory:", store.WithLogger(o.logger))
	if err != nil {
		return nil, errors.Wrap(err, "create in-memory store")
	}
	defer st.Close()

	scopeID := scenario.ScopeID
	if scopeID == "" {
		scopeID = DefaultScopeID
	}

	exec := testutil.NewRecordingExecutor(st)
	eng := engine.New(reg, exec,
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithScopeIDGenerator(engine.NewFixedGenerator(scopeID)),
		engine.WithLogger(o.logger),
	)
	if err := eng.EnsureSchema(ctx); err != nil {
		return nil, errors.Wrap(err, "create tables")
	}
	exec.Reset()

	h := &Harness{
		store:  st,
		exec:   exec,
		engine: eng,
		refs:   map[string]*record.Record{},
		logger: o.logger,
	}

	result := NewResult()
	if !h.executeSteps(ctx, scenario.Steps, result) {
		return result, nil
	}

	actx := &AssertionContext{
		Store:  st,
		Engine: eng,
		Refs:   h.refs,
		Ctx:    ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSteps runs every step and reports whether the run may continue.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) bool {
	for i, step := range steps {
		before := len(h.exec.Batches())
		ev, err := h.executeStep(ctx, step)
		ev.Step = i
		ev.Writes = describeWrites(h.exec.Batches()[before:])

		switch {
		case err != nil && step.ExpectError == "":
			result.AddStep(ev)
			result.AddError(fmt.Sprintf("step %d (%s %s): %v", i, step.Op, step.Ref, err))
			return false
		case err == nil && step.ExpectError != "":
			result.AddStep(ev)
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error containing %q, got none",
				i, step.Op, step.Ref, step.ExpectError))
			return false
		case err != nil:
			ev.Error = err.Error()
			if !strings.Contains(ev.Error, step.ExpectError) {
				result.AddStep(ev)
				result.AddError(fmt.Sprintf("step %d (%s %s): expected error containing %q, got %q",
					i, step.Op, step.Ref, step.ExpectError, ev.Error))
				return false
			}
		}
		result.AddStep(ev)

		h.logger.Debug("step completed",
			zap.Int("step", i),
			zap.String("op", step.Op),
			zap.String("ref", step.Ref),
			zap.Int64("id", ev.ID),
			zap.Int("writes", len(ev.Writes)),
		)
	}
	return true
}

func (h *Harness) executeStep(ctx context.Context, step Step) (ev TraceEvent, err error) {
	ev = TraceEvent{Op: step.Op, Ref: step.Ref, Values: step.Values}

	if step.Op == OpCreate {
		rec, err := h.engine.NewRecord(step.Class)
		if err != nil {
			return ev, err
		}
		h.refs[step.Ref] = rec
	}
	rec := h.refs[step.Ref]
	defer func() {
		ev.Class = rec.ClassName()
		if !rec.IsDestroyed() {
			ev.ID = rec.ID()
		}
	}()

	switch step.Op {
	case OpCreate, OpSet:
		for _, name := range sortedKeys(step.Values) {
			rec.Set(name, step.Values[name])
		}
		if !step.Persist {
			return ev, nil
		}
		_, err := h.engine.Persist(ctx, rec)
		return ev, err

	case OpPersist:
		var opts []engine.PersistOption
		if step.Force {
			opts = append(opts, engine.WithForceWrite())
		}
		_, err := h.engine.Persist(ctx, rec, opts...)
		return ev, err

	case OpDelete:
		return ev, h.engine.Delete(ctx, rec)

	case OpAdd, OpRemove:
		set, err := h.engine.ResolveRelation(ctx, rec, step.Relation)
		if err != nil {
			return ev, err
		}
		target := h.refs[step.Target]
		if step.Op == OpAdd {
			return ev, set.Add(ctx, target, step.Extra)
		}
		return ev, set.Remove(ctx, target)

	case OpReload:
		fresh, lookupErr := h.engine.Scope().GetByID(ctx, rec.ClassName(), rec.ID())
		if lookupErr != nil {
			return ev, lookupErr
		}
		if fresh == nil {
			return ev, errors.Wrapf(errors.ErrNotFound, "reload %s", rec)
		}
		h.refs[step.Ref] = fresh
		rec = fresh
		return ev, nil
	}
	return ev, errors.Newf("unknown op %q", step.Op)
}

// describeWrites flattens batches to "command Table" entries.
func describeWrites(batches [][]store.TableWrite) []string {
	var out []string
	for _, batch := range batches {
		for _, w := range batch {
			out = append(out, w.Command.String()+" "+w.Table)
		}
	}
	return out
}
