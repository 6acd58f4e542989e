// Package queryir provides the intermediate representation the engine builds
// queries in before they are compiled to SQL.
//
//	[query.Builder] → [queryir.Select] → [querysql.Compiler] → SQL + params
//
// A Select is built incrementally: the builder adds one column per stored
// field, one LEFT JOIN per ancestor table, the class restriction, and any
// composite-field expansion; callers add filters, sort, limits and extra
// joins (for example a junction table for a many-many relation).
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed using the marker method pattern. Only types
// in this package implement them, so compilers can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case And:
//	...
//	}
//
// VALUES:
//
// Literal values are carried as Go values (int64, string, bool, float64,
// nil) and are always emitted as parameters, never interpolated. Raw is the
// escape hatch for caller-written SQL; its Args are parameters too.
package queryir
