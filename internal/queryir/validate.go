package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists structural problems found in a query.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// Error joins the problems into one message.
func (r ValidationResult) Error() string {
	return strings.Join(r.Problems, "; ")
}

// Validate checks a query for structural mistakes before compilation:
//  1. a source table is required
//  2. columns are explicit (no SELECT *)
//  3. every join names a table and a condition
//  4. limit and offset are not negative
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From == "" {
		v.addProblem("select has no source table")
	}
	if len(sel.Columns) == 0 && !sel.Count {
		v.addProblem("select has no columns - columns must be explicit")
	}
	for i, c := range sel.Columns {
		if c.Expr == "" && c.Field == "" {
			v.addProblem("column %d has neither a field nor an expression", i)
		}
		if c.Expr != "" && c.Alias == "" {
			v.addProblem("expression column %d needs an alias", i)
		}
	}
	for _, j := range sel.Joins {
		if j.Table == "" {
			v.addProblem("join without a table")
		}
		if j.On == nil {
			v.addProblem("join on %q has no condition", j.Table)
		}
		v.validatePredicate(j.On)
	}
	v.validatePredicate(sel.Where)
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
	if sel.Offset < 0 {
		v.addProblem("negative offset %d", sel.Offset)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		if pred.Field == "" {
			v.addProblem("equals predicate without a field")
		}
	case ColumnEquals:
		if pred.LeftField == "" || pred.RightField == "" {
			v.addProblem("column comparison with a missing field")
		}
	case In:
		if pred.Field == "" {
			v.addProblem("in predicate without a field")
		}
	case Raw:
		if strings.Count(pred.SQL, "?") != len(pred.Args) {
			v.addProblem("raw predicate %q has %d placeholders but %d args",
				pred.SQL, strings.Count(pred.SQL, "?"), len(pred.Args))
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
