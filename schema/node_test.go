package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsDocumentOrder(t *testing.T) {
	src := `{"type":"object","description":"VTuber","properties":{"zeta":{"type":"string"},"alpha":{"type":"integer","minimum":0},"mid":{"enum":["2D","3D"]}},"required":["alpha"]}`

	n, err := ParseString(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"type", "description", "properties", "required"}, n.Keywords())
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, propertyNames(n))
	assert.Equal(t, []string{"alpha"}, n.Required())
	assert.Equal(t, "object", n.Type())

	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestParse_CompactsOpaquePayload(t *testing.T) {
	n, err := ParseString(`{
		"type": "string",
		"enum": [ "a",  "b" ]
	}`)
	require.NoError(t, err)

	assert.Equal(t, `{"type":"string","enum":["a","b"]}`, n.String())
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := ParseString(`{"type":`)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestParse_MalformedStructuralKeywordsStayOpaque(t *testing.T) {
	n, err := ParseString(`{"properties":[1,2],"required":"name","items":{}}`)
	require.NoError(t, err)

	assert.False(t, n.HasProperties())
	assert.Nil(t, n.Required())
	assert.Equal(t, KindLeaf, n.Kind())

	raw, ok := n.Keyword(KeywordProperties)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, string(raw))
	assert.Equal(t, `{"properties":[1,2],"required":"name","items":{}}`, n.String())
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Kind
	}{
		{"object", `{"type":"object","properties":{}}`, KindObject},
		{"array", `{"type":"array","items":{"type":"string"}}`, KindArray},
		{"tuple", `{"type":"array","items":[{"type":"string"}]}`, KindArray},
		{"empty items", `{"type":"array","items":{}}`, KindLeaf},
		{"empty tuple", `{"type":"array","items":[]}`, KindLeaf},
		{"false items", `{"type":"array","items":false}`, KindLeaf},
		{"true items", `{"type":"array","items":true}`, KindArray},
		{"properties wins", `{"properties":{"a":{}},"items":{"type":"string"}}`, KindObject},
		{"scalar", `{"type":"string"}`, KindLeaf},
		{"boolean", `true`, KindLeaf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.src).Kind())
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := MustParse(`{"type":"object","properties":{"a":{"type":"array","items":{"type":"string"}}},"required":["a"]}`)
	before := orig.String()

	c := orig.Clone()
	c.SetRequired("b")
	c.Property("a").SetItems(SingleItems(NewIntegerSchema()))
	c.SetProperty("new", NewStringSchema())

	assert.Equal(t, before, orig.String())
	assert.NotEqual(t, before, c.String())
}

func TestBuilders(t *testing.T) {
	n := NewObjectSchema().
		WithDescription("A prop").
		AddProperty("name", NewStringSchema().WithMinLength(3).WithMaxLength(10)).
		AddProperty("imageUrl", NewStringSchema().WithFormat("uri")).
		AddProperty("kind", NewTypedSchema("string").WithEnum("2D", "3D")).
		AddRequired("name", "imageUrl").
		AddRequired("name")

	assert.Equal(t,
		`{"type":"object","properties":{"name":{"type":"string","minLength":3,"maxLength":10},"imageUrl":{"type":"string","format":"uri"},"kind":{"type":"string","enum":["2D","3D"]}},"description":"A prop","required":["name","imageUrl"]}`,
		n.String())
}

func TestSetProperty_ReplaceKeepsPosition(t *testing.T) {
	n := NewObjectSchema().
		AddProperty("a", NewStringSchema()).
		AddProperty("b", NewStringSchema())
	n.SetProperty("a", NewIntegerSchema())

	assert.Equal(t, []string{"a", "b"}, propertyNames(n))
	assert.Equal(t, "integer", n.Property("a").Type())
}

func TestNewSubSchema(t *testing.T) {
	value := NewStringSchema()

	req := NewSubSchema("name", value, true)
	assert.Equal(t, `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`, req.String())

	opt := NewSubSchema("price", NewIntegerSchema(), false)
	assert.Equal(t, `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"price":{"type":"integer"}}}`, opt.String())

	req.Property("name").WithMinLength(1)
	assert.Equal(t, `{"type":"string"}`, value.String(), "sub-schema must not alias its value")
}

func propertyNames(n *Node) []string {
	var names []string
	for _, p := range n.Properties() {
		names = append(names, p.Name)
	}
	return names
}
