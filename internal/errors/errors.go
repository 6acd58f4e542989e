// Package errors provides error handling for lineage.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping, hints)
// and defines the engine's error taxonomy:
//
//   - ConfigError: a declaration mistake (unknown relation, missing table,
//     unresolved inverse). Fatal, never retried.
//   - ValidationError: a record failed domain validation. Raised before any
//     I/O; the write is aborted with no side effects.
//   - ErrNotFound / ErrRecordDestroyed: sentinels for lookups and misuse of
//     deleted records.
//
// Storage failures are wrapped with context and propagated unchanged.
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a programming error.
var AssertionFailedf = crdb.AssertionFailedf

var (
	// ErrNotFound indicates the requested record or relation does not exist.
	ErrNotFound = New("not found")

	// ErrRecordDestroyed indicates a deleted or destroyed record was used again.
	ErrRecordDestroyed = New("record has been destroyed")
)

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnknownClass indicates a class name that was never declared.
	ErrCodeUnknownClass ConfigErrorCode = "UNKNOWN_CLASS"

	// ErrCodeUnknownRelation indicates a relation name not declared on the class or its ancestors.
	ErrCodeUnknownRelation ConfigErrorCode = "UNKNOWN_RELATION"

	// ErrCodeMissingTable indicates a hierarchy with no physical table.
	ErrCodeMissingTable ConfigErrorCode = "MISSING_TABLE"

	// ErrCodeUnresolvedInverse indicates a belongs-many-many with no matching many-many.
	ErrCodeUnresolvedInverse ConfigErrorCode = "UNRESOLVED_INVERSE"

	// ErrCodeAmbiguousInverse indicates more than one candidate inverse relation.
	ErrCodeAmbiguousInverse ConfigErrorCode = "AMBIGUOUS_INVERSE"

	// ErrCodeInvalidDeclaration indicates a malformed class declaration.
	ErrCodeInvalidDeclaration ConfigErrorCode = "INVALID_DECLARATION"
)

// ConfigError represents a schema declaration mistake detected at runtime.
type ConfigError struct {
	Code     ConfigErrorCode
	Class    string
	Relation string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Class != "" && e.Relation != "":
		return fmt.Sprintf("%s: %s (class=%s, relation=%s)", e.Code, e.Message, e.Class, e.Relation)
	case e.Class != "":
		return fmt.Sprintf("%s: %s (class=%s)", e.Code, e.Message, e.Class)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// NewConfigError creates a ConfigError with a stack trace attached.
func NewConfigError(code ConfigErrorCode, class, relation, format string, args ...any) error {
	return WithStack(&ConfigError{
		Code:     code,
		Class:    class,
		Relation: relation,
		Message:  fmt.Sprintf(format, args...),
	})
}

// IsConfigError returns true if err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return As(err, &ce)
}

// ConfigCode returns the code of a wrapped ConfigError, or "" if there is none.
func ConfigCode(err error) ConfigErrorCode {
	var ce *ConfigError
	if As(err, &ce) {
		return ce.Code
	}
	return ""
}

// ValidationError is returned when a record fails domain validation.
type ValidationError struct {
	Class   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Class, e.Message)
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return As(err, &ve)
}
