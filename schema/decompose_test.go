package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_ScalarLeaves(t *testing.T) {
	root := MustParse(`{"type":"object","properties":{"name":{"type":"string"},"price":{"type":"integer"}},"required":["name"]}`)

	subs := Decompose(root)
	require.Len(t, subs, 2)

	assert.Equal(t,
		`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`,
		subs[0].String())
	assert.Equal(t,
		`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"price":{"type":"integer"}}}`,
		subs[1].String())
}

func TestDecompose_NoProperties(t *testing.T) {
	for _, src := range []string{
		`{"type":"object"}`,
		`{"type":"object","properties":{}}`,
		`{"type":"string"}`,
		`true`,
		`{"properties":"oops"}`,
	} {
		t.Run(src, func(t *testing.T) {
			subs := Decompose(MustParse(src))
			assert.NotNil(t, subs)
			assert.Empty(t, subs)
		})
	}
	assert.Empty(t, Decompose(nil))
}

func TestDecompose_NestedObjectIsFlattened(t *testing.T) {
	root := MustParse(`{"type":"object","properties":{
		"a":{"type":"object","properties":{"x":{"type":"string"},"y":{"type":"number"}},"required":["y"]},
		"b":{"type":"boolean"}
	},"required":["a","b"]}`)

	subs := Decompose(root)

	assert.Equal(t, []string{"x", "y", "b"}, LeafNames(subs))
	for _, s := range subs {
		assert.Nil(t, s.Property("a"), "intermediate object key must not be packaged")
	}
	// Required-ness of "a" is not carried to its leaves; "y" is required by "a" itself.
	assert.False(t, subs[0].IsRequired("x"))
	assert.True(t, subs[1].IsRequired("y"))
	assert.True(t, subs[2].IsRequired("b"))
}

func TestDecompose_DeepNestingVisitOrder(t *testing.T) {
	root := MustParse(`{"properties":{
		"first":{"type":"string"},
		"outer":{"properties":{
			"inner":{"properties":{"deep":{"type":"string"}}},
			"after":{"type":"string"}
		}},
		"last":{"type":"string"}
	}}`)

	assert.Equal(t, []string{"first", "deep", "after", "last"}, LeafNames(Decompose(root)))
}

func TestDecompose_ParentRequired(t *testing.T) {
	root := MustParse(`{"properties":{"x":{"type":"string"},"y":{"type":"string"}}}`)

	subs := Decompose(root, "y")
	require.Len(t, subs, 2)
	assert.False(t, subs[0].IsRequired("x"))
	assert.True(t, subs[1].IsRequired("y"))
}

func TestDecompose_ArrayOfObjectsPassesThrough(t *testing.T) {
	root := MustParse(`{"type":"object","properties":{
		"pinned_repositories":{"type":"array","items":{"type":"object","properties":{"p":{"type":"string"},"q":{"type":"integer"}},"required":["p"]}}
	},"required":["pinned_repositories","q"]}`)

	subs := Decompose(root)
	require.Len(t, subs, 1)

	sub := subs[0]
	assert.Equal(t, []string{"pinned_repositories"}, LeafNames(subs))
	assert.True(t, sub.IsRequired("pinned_repositories"))

	arr := sub.Property("pinned_repositories")
	require.NotNil(t, arr)
	items := arr.Items()
	require.True(t, items.IsTuple())
	require.Len(t, items.Tuple(), 2)

	p, q := items.Tuple()[0], items.Tuple()[1]
	assert.Equal(t, "p", SubSchemaKey(p))
	assert.Equal(t, "q", SubSchemaKey(q))
	// Item sub-schemas are computed against the enclosing object's required list.
	assert.True(t, p.IsRequired("p"))
	assert.True(t, q.IsRequired("q"))
}

func TestDecompose_ArrayOfScalarsUntouched(t *testing.T) {
	root := MustParse(`{"properties":{"tags":{"type":"array","items":{"type":"string"},"maxItems":3}}}`)

	subs := Decompose(root)
	require.Len(t, subs, 1)
	assert.Equal(t, `{"type":"array","items":{"type":"string"},"maxItems":3}`, subs[0].Property("tags").String())
}

func TestDecompose_TupleItemsSpliced(t *testing.T) {
	root := MustParse(`{"properties":{"pair":{"type":"array","items":[{"type":"string"},{"properties":{"k":{"type":"string"},"v":{"type":"string"}}}]}}}`)

	subs := Decompose(root)
	require.Len(t, subs, 1)

	tuple := subs[0].Property("pair").Items().Tuple()
	require.Len(t, tuple, 3)
	assert.Equal(t, `{"type":"string"}`, tuple[0].String())
	assert.Equal(t, "k", SubSchemaKey(tuple[1]))
	assert.Equal(t, "v", SubSchemaKey(tuple[2]))
}

func TestDecompose_TupleSpliceShiftsLaterPositions(t *testing.T) {
	root := MustParse(`{"properties":{"row":{"type":"array","items":[{"properties":{"p":{"type":"string"},"q":{"type":"integer"}}},{"type":"string"}]}}}`)

	tuple := Decompose(root)[0].Property("row").Items().Tuple()
	require.Len(t, tuple, 3)
	assert.Equal(t, "p", SubSchemaKey(tuple[0]))
	assert.Equal(t, "q", SubSchemaKey(tuple[1]))
	assert.Equal(t, `{"type":"string"}`, tuple[2].String())
}

func TestDecompose_PropertiesWinOverItems(t *testing.T) {
	root := MustParse(`{"properties":{"odd":{"properties":{"x":{"type":"string"}},"items":{"type":"string"}}}}`)

	assert.Equal(t, []string{"x"}, LeafNames(Decompose(root)))
}

func TestDecompose_DoesNotMutateInput(t *testing.T) {
	src := `{"properties":{"list":{"type":"array","items":{"properties":{"a":{"type":"string"}}}},"n":{"type":"object","properties":{"b":{"type":"string"}}}},"required":["list"]}`
	root := MustParse(src)

	subs := Decompose(root)
	for _, s := range subs {
		s.SetRequired("mutated")
		if p := s.Properties(); len(p) > 0 {
			p[0].Schema.WithDescription("mutated")
		}
	}

	assert.Equal(t, src, root.String())
}

func TestDecompose_SubSchemasAreValidDraft07(t *testing.T) {
	root := MustParse(`{"type":"object","properties":{
		"name":{"type":"string","minLength":3,"maxLength":10},
		"appearanceType":{"type":"string","enum":["2D","3D"]},
		"transition_trigger":{"type":"object","properties":{"trigger_condition":{"type":"string"},"from_animation":{"type":"string"}}},
		"pinned":{"type":"array","items":{"type":"object","properties":{"repo":{"type":"string"}}}}
	},"required":["name"]}`)

	v := NewDraft07Validator()
	for _, s := range Decompose(root) {
		assert.NoError(t, v.ValidateSchema(s), s.String())
	}
}
