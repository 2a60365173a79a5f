package structs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/ast"
)

func TestRegisterNewThenDuplicateIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	def := &StructDef{Name: "Point", Fields: []FieldDesc{{Name: "x", Type: &ast.TypeNode{Name: "int"}}}}

	res, err := r.Register(def)
	require.NoError(t, err)
	assert.Equal(t, New, res)

	res, err = r.Register(&StructDef{Name: "Point", Fields: []FieldDesc{{Name: "x", Type: &ast.TypeNode{Name: "int"}}}})
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res)
}

func TestRegisterConflictingShapeKeepsFirst(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Register(&StructDef{Name: "Point", Fields: []FieldDesc{{Name: "x", Type: &ast.TypeNode{Name: "int"}}}})
	require.NoError(t, err)

	res, err := r.Register(&StructDef{Name: "Point", Fields: []FieldDesc{{Name: "x", Type: &ast.TypeNode{Name: "string"}}}})
	require.NoError(t, err)
	assert.Equal(t, Conflict, res)

	def, ok := r.Get("Point")
	require.True(t, ok)
	assert.Equal(t, "int", def.Fields[0].Type.Name)
}

func TestDirectCycleRejected(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Register(&StructDef{Name: "A", Fields: []FieldDesc{{Name: "b", Type: &ast.TypeNode{Name: "B"}}}})
	require.NoError(t, err)

	_, err = r.Register(&StructDef{Name: "B", Fields: []FieldDesc{{Name: "a", Type: &ast.TypeNode{Name: "A"}}}})
	assert.Error(t, err)
}

func TestNullableFieldBreaksCycle(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Register(&StructDef{Name: "Node", Fields: []FieldDesc{
		{Name: "next", Type: &ast.TypeNode{Name: "Node", Nullable: true}},
	}})
	assert.NoError(t, err)
}

func TestMangledNameAndSubstitute(t *testing.T) {
	assert.Equal(t, "Box_int", MangledName("Box", []string{"int"}))

	def := &StructDef{
		Name:       "Box",
		TypeParams: []string{"T"},
		Fields:     []FieldDesc{{Name: "value", Type: &ast.TypeNode{Name: "T"}}},
	}
	specialized := Substitute(def, map[string]string{"T": "int"})
	assert.Equal(t, "Box_int", specialized.Name)
	assert.Equal(t, "int", specialized.Fields[0].Type.Name)
}
