package jsonforge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v-sekai/jsonforge/testutil/fixtures"
	"github.com/v-sekai/jsonforge/testutil/mocks"
)

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestNew_OpenAICompat(t *testing.T) {
	p, err := New(WithOpenAICompat("http://localhost:8000", "gpt-4o-mini"), WithAPIKey("k"))
	require.NoError(t, err)
	assert.NotNil(t, p.Engine())
}

func TestPredict(t *testing.T) {
	engine := mocks.NewMockEngine().WithValue("name", "Wand").WithValue("price", 5)
	p, err := New(WithEngine(engine), WithPromptFeedback(true))
	require.NoError(t, err)
	assert.True(t, p.PromptFeedback())

	rec, err := p.Predict(context.Background(), "Generate a wand.", []byte(fixtures.WandSchema))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Wand","price":5}`, rec.String())
}

func TestPredict_InvalidJSON(t *testing.T) {
	p, err := New(WithEngine(mocks.NewMockEngine()))
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), "x", []byte(`{not json`))
	assert.Error(t, err)
}

func TestDecompose(t *testing.T) {
	subs, err := Decompose([]byte(fixtures.WandSchema))
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Contains(t, string(subs[0]), `"name"`)
	assert.Contains(t, string(subs[1]), `"price"`)
}
