package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_Format(t *testing.T) {
	err := &ConfigError{Code: ErrCodeUnknownRelation, Class: "Page", Relation: "Tags", Message: "no such relation"}
	assert.Equal(t, "UNKNOWN_RELATION: no such relation (class=Page, relation=Tags)", err.Error())

	err = &ConfigError{Code: ErrCodeMissingTable, Class: "DataObject", Message: "no table"}
	assert.Equal(t, "MISSING_TABLE: no table (class=DataObject)", err.Error())

	err = &ConfigError{Code: ErrCodeInvalidDeclaration, Message: "bad"}
	assert.Equal(t, "INVALID_DECLARATION: bad", err.Error())
}

func TestIsConfigError_Wrapped(t *testing.T) {
	err := NewConfigError(ErrCodeUnresolvedInverse, "Tag", "Pages", "no inverse on %s", "Page")
	wrapped := Wrap(fmt.Errorf("resolve: %w", err), "components")

	assert.True(t, IsConfigError(wrapped))
	assert.Equal(t, ErrCodeUnresolvedInverse, ConfigCode(wrapped))
	assert.False(t, IsValidationError(wrapped))
	assert.Contains(t, wrapped.Error(), "no inverse on Page")
}

func TestConfigCode_NotConfig(t *testing.T) {
	assert.Equal(t, ConfigErrorCode(""), ConfigCode(New("plain")))
	assert.False(t, IsConfigError(nil))
}

func TestValidationError(t *testing.T) {
	err := Wrap(&ValidationError{Class: "Page", Message: "Title is required"}, "persist")
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "validation failed for Page: Title is required")
}

func TestSentinels(t *testing.T) {
	err := Wrapf(ErrNotFound, "record %d", 4)
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrRecordDestroyed))
}
