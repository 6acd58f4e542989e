package engine

import (
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/record"
)

// Validator checks a record before it is written. A non-nil error aborts
// the write before any I/O.
type Validator interface {
	Validate(rec *record.Record) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(rec *record.Record) error

// Validate calls f(rec).
func (f ValidatorFunc) Validate(rec *record.Record) error {
	return f(rec)
}

// validate runs the validator and normalizes its error into a
// ValidationError.
func (e *Engine) validate(rec *record.Record) error {
	if e.validator == nil {
		return nil
	}
	err := e.validator.Validate(rec)
	if err == nil {
		return nil
	}
	if errors.IsValidationError(err) {
		return err
	}
	return errors.WithStack(&errors.ValidationError{Class: rec.ClassName(), Message: err.Error()})
}
