package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/cache"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/query"
	"github.com/roach88/lineage/internal/querysql"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
)

// Executor runs queries and write batches. Implemented by store.Store.
//
// Manipulate must apply the whole batch atomically and return the batch
// identity as store.Store does.
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) ([]store.Row, error)
	Manipulate(ctx context.Context, writes []store.TableWrite) (int64, error)
}

// TableCreator is implemented by executors that can create tables.
type TableCreator interface {
	EnsureTables(ctx context.Context, defs []store.TableDef) error
}

// LookupCache is the single-record cache type an Engine owns.
type LookupCache = cache.Lookup[*record.Record]

// Engine loads and persists records of the classes in its registry.
//
// An Engine is safe for concurrent use as far as its own state goes; the
// records it returns are not. Hosts that share an Engine across requests
// should call Scope per request so lookups stay request-local.
type Engine struct {
	schema    *schema.Registry
	codecs    *field.Registry
	builder   *query.Builder
	compiler  *querysql.SQLCompiler
	exec      Executor
	validator Validator
	logger    *zap.Logger
	clock     Clock
	lookup    *LookupCache
	scopeIDs  ScopeIDGenerator
	scopeID   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCodecs replaces the built-in field codecs.
func WithCodecs(c *field.Registry) Option {
	return func(e *Engine) {
		e.codecs = c
	}
}

// WithValidator sets the validator run before every write.
func WithValidator(v Validator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLookupCache sets the lookup cache. nil disables lookup caching.
func WithLookupCache(l *LookupCache) Option {
	return func(e *Engine) {
		e.lookup = l
	}
}

// WithScopeIDGenerator sets the generator used to name scopes.
func WithScopeIDGenerator(g ScopeIDGenerator) Option {
	return func(e *Engine) {
		e.scopeIDs = g
	}
}

// New creates an Engine over a registry and an executor.
func New(reg *schema.Registry, exec Executor, opts ...Option) *Engine {
	e := &Engine{
		schema:   reg,
		codecs:   field.NewRegistry(),
		compiler: querysql.NewSQLCompiler(),
		exec:     exec,
		logger:   zap.NewNop(),
		clock:    SystemClock{},
		lookup:   cache.NewLookup[*record.Record](),
		scopeIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.builder = query.NewBuilder(reg, e.codecs)
	e.scopeID = e.scopeIDs.Generate()
	e.logger = e.logger.With(zap.String("scope", e.scopeID))
	return e
}

// Scope returns an Engine sharing registry, codecs, executor and settings
// but with its own lookup cache and scope id. A disabled cache stays
// disabled.
func (e *Engine) Scope() *Engine {
	scoped := *e
	if e.lookup != nil {
		scoped.lookup = cache.NewLookup[*record.Record]()
	}
	scoped.scopeID = e.scopeIDs.Generate()
	scoped.logger = e.logger.With(zap.String("scope", scoped.scopeID))
	return &scoped
}

// ScopeID identifies this engine in logs.
func (e *Engine) ScopeID() string { return e.scopeID }

// Registry returns the schema registry.
func (e *Engine) Registry() *schema.Registry { return e.schema }

// Codecs returns the field codec registry.
func (e *Engine) Codecs() *field.Registry { return e.codecs }

// Lookup returns the lookup cache, or nil when disabled.
func (e *Engine) Lookup() *LookupCache { return e.lookup }

// Builder returns the query builder.
func (e *Engine) Builder() *query.Builder { return e.builder }

// NewRecord constructs an unsaved record of class with its declared
// defaults applied.
func (e *Engine) NewRecord(class string) (*record.Record, error) {
	defaults, err := e.schema.Defaults(class)
	if err != nil {
		return nil, err
	}
	return record.New(class, defaults), nil
}

// EnsureSchema creates every table the registry declares. The executor
// must implement TableCreator.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	creator, ok := e.exec.(TableCreator)
	if !ok {
		return errors.Newf("executor %T cannot create tables", e.exec)
	}
	defs, err := TableDefs(e.schema, e.codecs)
	if err != nil {
		return err
	}
	if err := creator.EnsureTables(ctx, defs); err != nil {
		return errors.Wrap(err, "ensure tables")
	}
	e.logger.Info("schema ensured", zap.Int("tables", len(defs)))
	return nil
}

func (e *Engine) invalidateAncestry(class string) {
	if e.lookup == nil {
		return
	}
	names, err := e.schema.AncestryNames(class)
	if err != nil {
		return
	}
	e.lookup.InvalidateClasses(names...)
}
