package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraft07Validator_ValidateSchema(t *testing.T) {
	v := NewDraft07Validator()

	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		{"sub-schema", `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`, false},
		{"bool schema", `true`, false},
		{"bad type", `{"type":"strin"}`, true},
		{"bad minLength", `{"type":"string","minLength":-1}`, true},
		{"bad required", `{"type":"object","required":"name"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateSchema(MustParse(tt.src))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDraft07Validator_ValidateInstance(t *testing.T) {
	v := NewDraft07Validator()
	sub := NewSubSchema("name", NewStringSchema().WithMinLength(3).WithMaxLength(10), true)

	assert.NoError(t, v.ValidateInstance(sub, map[string]any{"name": "Wand"}))
	assert.Error(t, v.ValidateInstance(sub, map[string]any{"name": "Wa"}))
	assert.Error(t, v.ValidateInstance(sub, map[string]any{}))
	assert.Error(t, v.ValidateInstance(sub, map[string]any{"name": 5}))
}

func TestDraft07Validator_ValidateJSON(t *testing.T) {
	v := NewDraft07Validator()
	sub := NewSubSchema("price", NewIntegerSchema(), false)

	require.NoError(t, v.ValidateJSON(sub, []byte(`{"price":5}`)))
	assert.NoError(t, v.ValidateJSON(sub, []byte(`{}`)))
	assert.NoError(t, v.ValidateJSON(sub, []byte(`{"price":9007199254740993}`)))
	assert.Error(t, v.ValidateJSON(sub, []byte(`{"price":5.5}`)))
	assert.Error(t, v.ValidateJSON(sub, []byte(`{"price":`)))
}

func TestDraft07Validator_NilSchema(t *testing.T) {
	assert.Error(t, NewDraft07Validator().ValidateSchema(nil))
}
