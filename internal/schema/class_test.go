package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestClassDescriptor_YAMLShorthand(t *testing.T) {
	src := `
name: Page
extends: SiteTree
db:
  Title: Varchar
has_many:
  Comments: Comment
  Notes:
    class: Note
    inverse: Owner
many_many:
  Tags: Tag
  Images:
    class: Image
    extra:
      Sort: Int
belongs_many_many:
  Sections: Section
defaults:
  Title: Untitled
`
	var decl ClassDescriptor
	require.NoError(t, yaml.Unmarshal([]byte(src), &decl))

	assert.Equal(t, "Page", decl.Name)
	assert.Equal(t, "SiteTree", decl.Extends)
	assert.Equal(t, HasManyDecl{Class: "Comment"}, decl.HasMany["Comments"])
	assert.Equal(t, HasManyDecl{Class: "Note", Inverse: "Owner"}, decl.HasMany["Notes"])
	assert.Equal(t, ManyManyDecl{Class: "Tag"}, decl.ManyMany["Tags"])
	assert.Equal(t, map[string]string{"Sort": "Int"}, decl.ManyMany["Images"].Extra)
	assert.Equal(t, BelongsManyManyDecl{Class: "Section"}, decl.BelongsManyMany["Sections"])
	assert.Equal(t, "Untitled", decl.Defaults["Title"])
}

func TestManyManyKeys(t *testing.T) {
	parent, child := ManyManyKeys("Page", "Tag")
	assert.Equal(t, "PageID", parent)
	assert.Equal(t, "TagID", child)

	parent, child = ManyManyKeys("Person", "Person")
	assert.Equal(t, "PersonID", parent)
	assert.Equal(t, "ChildID", child)

	assert.Equal(t, "Page_Tags", JunctionTable("Page", "Tags"))
}
