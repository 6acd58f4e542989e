package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/schema"
)

func validBlog() []schema.ClassDescriptor {
	return []schema.ClassDescriptor{
		{Name: "Author", DB: map[string]string{"Name": "Varchar(100)"}, HasMany: map[string]schema.HasManyDecl{"Posts": {Class: "Post"}}},
		{
			Name:     "Post",
			DB:       map[string]string{"Title": "Varchar", "Price": "Money"},
			HasOne:   map[string]string{"Author": "Author"},
			ManyMany: map[string]schema.ManyManyDecl{"Tags": {Class: "Tag", Extra: map[string]string{"Weight": "Int"}}},
		},
		{Name: "Tag", BelongsManyMany: map[string]schema.BelongsManyManyDecl{"Posts": {Class: "Post"}}},
		{Name: "Article", Extends: "Post", DB: map[string]string{"Body": "Text"}},
	}
}

func validate(decls []schema.ClassDescriptor) []ValidationError {
	return Validate(decls, field.NewRegistry(), schema.DefaultRootClass)
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	assert.Empty(t, validate(validBlog()))
}

func TestValidateStructural(t *testing.T) {
	tests := []struct {
		name      string
		decl      schema.ClassDescriptor
		wantCode  string
		wantField string
	}{
		{"bad class name", schema.ClassDescriptor{Name: "my class"}, ErrInvalidName, "class.my class"},
		{"unknown parent", schema.ClassDescriptor{Name: "X", Extends: "Nope"}, ErrUnknownParent, "class.X.extends"},
		{"unknown field type", schema.ClassDescriptor{Name: "X", DB: map[string]string{"Shape": "Polygon"}}, ErrInvalidFieldType, "class.X.db.Shape"},
		{"reserved field", schema.ClassDescriptor{Name: "X", DB: map[string]string{"Created": "Datetime"}}, ErrReservedField, "class.X.db.Created"},
		{"bad field name", schema.ClassDescriptor{Name: "X", DB: map[string]string{"a-b": "Int"}}, ErrInvalidName, "class.X.db.a-b"},
		{"unknown target", schema.ClassDescriptor{Name: "X", HasOne: map[string]string{"Owner": "Ghost"}}, ErrUnknownTarget, "class.X.has_one.Owner"},
		{
			"foreign key collision",
			schema.ClassDescriptor{Name: "X", DB: map[string]string{"OwnerID": "Int"}, HasOne: map[string]string{"Owner": "Author"}},
			ErrDuplicateName, "class.X.has_one.Owner",
		},
		{
			"relation declared twice",
			schema.ClassDescriptor{
				Name:     "X",
				HasMany:  map[string]schema.HasManyDecl{"Tags": {Class: "Tag"}},
				ManyMany: map[string]schema.ManyManyDecl{"Tags": {Class: "Tag"}},
			},
			ErrDuplicateName, "class.X.many_many.Tags",
		},
		{
			"composite junction column",
			schema.ClassDescriptor{Name: "X", ManyMany: map[string]schema.ManyManyDecl{"Tags": {Class: "Tag", Extra: map[string]string{"Fee": "Money"}}}},
			ErrInvalidFieldType, "class.X.many_many.Tags.extra.Fee",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validate(append(validBlog(), tt.decl))
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.wantCode)

			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateDuplicateClass(t *testing.T) {
	errs := validate(append(validBlog(), schema.ClassDescriptor{Name: "Tag"}))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateName, errs[0].Code)
	assert.Equal(t, "class.Tag", errs[0].Field)
}

func TestValidateInheritanceCycle(t *testing.T) {
	errs := validate([]schema.ClassDescriptor{
		{Name: "A", Extends: "B"},
		{Name: "B", Extends: "A"},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInheritanceCycle, errs[0].Code)
	assert.Equal(t, "class.A.extends", errs[0].Field)
}

func TestValidateUnresolvedInverse(t *testing.T) {
	errs := validate([]schema.ClassDescriptor{
		{Name: "Post"},
		{Name: "Tag", BelongsManyMany: map[string]schema.BelongsManyManyDecl{"Posts": {Class: "Post"}}},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnresolvedRelation, errs[0].Code)
	assert.Equal(t, "class.Tag.Posts", errs[0].Field)
	assert.Contains(t, errs[0].Message, "UNRESOLVED_INVERSE")
	assert.Contains(t, errs[0].Message, "declare a many_many on Post")
}

func TestValidateAmbiguousInverse(t *testing.T) {
	errs := validate([]schema.ClassDescriptor{
		{Name: "Post", ManyMany: map[string]schema.ManyManyDecl{"Tags": {Class: "Tag"}, "Labels": {Class: "Tag"}}},
		{Name: "Tag", BelongsManyMany: map[string]schema.BelongsManyManyDecl{"Posts": {Class: "Post"}}},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "AMBIGUOUS_INVERSE")
}

func TestValidateMissingJoinColumn(t *testing.T) {
	errs := validate([]schema.ClassDescriptor{
		{Name: "Folder", HasMany: map[string]schema.HasManyDecl{"Files": {Class: "File"}}},
		{Name: "File"},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "class.Folder.has_many.Files", errs[0].Field)
	assert.Contains(t, errs[0].Message, "ParentID")
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "class.X.db.Y", Message: "bad", Code: ErrInvalidFieldType}
	assert.Equal(t, "[E104] class.X.db.Y: bad", err.Error())
}
