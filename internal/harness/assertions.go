package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/query"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", ev.Step, ev.Op, ev.Ref, ev.Writes)
		}
	}
	return buf.String()
}

// AssertionContext provides what assertions need beyond the trace.
type AssertionContext struct {
	Store  *store.Store
	Engine *engine.Engine
	Refs   map[string]*record.Record
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertWrites:
			err = assertWrites(result, assertion)
		case AssertCount, AssertField, AssertComponents, AssertFinalState:
			if actx == nil || actx.Store == nil || actx.Engine == nil {
				err = errors.Newf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertCount:
				err = assertCount(actx, assertion)
			case AssertField:
				err = assertField(actx, assertion)
			case AssertComponents:
				err = assertComponents(actx, assertion)
			default:
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = errors.Newf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertWrites checks the exact writes issued by one step.
func assertWrites(result *Result, a Assertion) error {
	ev, ok := result.Step(a.Step)
	if !ok {
		return &AssertionError{
			Type:     AssertWrites,
			Expected: fmt.Sprintf("step %d to have run", a.Step),
			Actual:   "step not in trace",
			Trace:    result.Trace,
		}
	}
	if !reflect.DeepEqual(normalizeWrites(ev.Writes), normalizeWrites(a.Writes)) {
		return &AssertionError{
			Type:     AssertWrites,
			Expected: fmt.Sprintf("step %d writes %v", a.Step, a.Writes),
			Actual:   fmt.Sprintf("%v", ev.Writes),
			Trace:    result.Trace,
		}
	}
	return nil
}

func normalizeWrites(w []string) []string {
	if len(w) == 0 {
		return nil
	}
	return w
}

// assertCount counts the stored records of a class and its subclasses.
func assertCount(actx *AssertionContext, a Assertion) error {
	filter, err := wherePredicate(actx.Engine.Registry(), a.Class, a.Where)
	if err != nil {
		return err
	}
	n, err := actx.Engine.Scope().Count(actx.Ctx, a.Class, query.Params{Filter: filter})
	if err != nil {
		return errors.Wrapf(err, "count %s", a.Class)
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d %s where %s", a.Count, a.Class, formatWhereClause(a.Where)),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertField reloads a record in a fresh scope and checks one field.
func assertField(actx *AssertionContext, a Assertion) error {
	rec, ok := actx.Refs[a.Ref]
	if !ok {
		return errors.Newf("field assertion: unknown ref %q", a.Ref)
	}
	stored, err := actx.Engine.Scope().GetByID(actx.Ctx, rec.ClassName(), rec.ID())
	if err != nil {
		return errors.Wrapf(err, "reload %s", a.Ref)
	}
	if stored == nil {
		return &AssertionError{
			Type:     AssertField,
			Expected: fmt.Sprintf("%s (%s) to be stored", a.Ref, rec),
			Actual:   "record not found",
		}
	}
	actual := stored.Get(a.Field)
	if !stateValuesEqual(a.Value, actual) {
		return &AssertionError{
			Type:     AssertField,
			Expected: fmt.Sprintf("%s.%s = %v (type %T)", a.Ref, a.Field, a.Value, a.Value),
			Actual:   fmt.Sprintf("%s.%s = %v (type %T)", a.Ref, a.Field, actual, actual),
		}
	}
	return nil
}

// assertComponents resolves a relation in a fresh scope and counts it.
func assertComponents(actx *AssertionContext, a Assertion) error {
	rec, ok := actx.Refs[a.Ref]
	if !ok {
		return errors.Newf("components assertion: unknown ref %q", a.Ref)
	}
	scope := actx.Engine.Scope()
	owner, err := scope.GetByID(actx.Ctx, rec.ClassName(), rec.ID())
	if err != nil {
		return errors.Wrapf(err, "reload %s", a.Ref)
	}
	if owner == nil {
		return &AssertionError{
			Type:     AssertComponents,
			Expected: fmt.Sprintf("%s (%s) to be stored", a.Ref, rec),
			Actual:   "record not found",
		}
	}
	set, err := scope.ResolveRelation(actx.Ctx, owner, a.Relation)
	if err != nil {
		return errors.Wrapf(err, "resolve %s.%s", a.Ref, a.Relation)
	}
	n := 0
	for _, c := range set.Records() {
		if c.Exists() {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertComponents,
			Expected: fmt.Sprintf("%d components in %s.%s", a.Count, a.Ref, a.Relation),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// wherePredicate turns field equality pairs into a filter on the tables
// that store each field.
func wherePredicate(reg *schema.Registry, class string, where map[string]any) (queryir.Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	var preds []queryir.Predicate
	for _, name := range sortedKeys(where) {
		table, ok := reg.FieldTable(class, name)
		if !ok {
			return nil, errors.Newf("count assertion: %s has no stored field %s", class, name)
		}
		preds = append(preds, queryir.Equals{Table: table, Field: name, Value: toSQLValue(where[name])})
	}
	return queryir.And{Predicates: preds}, nil
}

// assertFinalState checks one raw row of a table using subset semantics.
// Table and column names are validated against a whitelist pattern.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return errors.Newf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`SELECT * FROM "%s"`, a.Table)
	if whereSQL != "" {
		q += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, q, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	switch {
	case len(rows) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	case len(rows) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := rows[0]
	for _, key := range sortedKeys(a.Expect) {
		expected := a.Expect[key]
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in columns %v", key, sortedKeys(row)),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism and validated as identifiers.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, errors.Newf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf(`"%s" = ?`, key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case string, int64, float64, bool, nil:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected YAML value with a stored or decoded
// value. SQLite integers come back as int64 and booleans as 0/1; composite
// values compare by their string form.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		if s, ok := actual.(string); ok {
			return exp == s
		}
		if s, ok := actual.(fmt.Stringer); ok {
			return exp == s.String()
		}
		return false
	case int, int64, float64:
		e, err := field.ToFloat64(exp)
		if err != nil {
			return false
		}
		if m, ok := actual.(*field.Money); ok {
			return e == m.Amount()
		}
		if _, isBool := actual.(bool); isBool {
			return false
		}
		a, err := field.ToFloat64(actual)
		return err == nil && e == a
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
