package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/llm"
	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/testutil/fixtures"
)

func TestMockEngine_ScriptedAndPlaceholder(t *testing.T) {
	e := NewMockEngine().WithValue("name", "Wand")
	p := forge.NewPipeline(e)

	res, err := p.Run(context.Background(), "Generate a wand.", schema.MustParse(fixtures.WandSchema))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Wand","price":0}`, res.Record.String())
	assert.Equal(t, []string{"Generate a wand.", "Generate a wand."}, e.Prompts())
	assert.Len(t, e.Calls(), 2)
}

func TestMockEngine_Error(t *testing.T) {
	boom := errors.New("boom")
	e := NewMockEngine().WithError("price", boom)

	_, err := forge.NewPipeline(e).Run(context.Background(), "p", schema.MustParse(fixtures.WandSchema))
	assert.ErrorIs(t, err, boom)
}

func TestMockEngine_Device(t *testing.T) {
	e := NewMockEngine()
	assert.Error(t, forge.CheckAccelerator(context.Background(), e))
	assert.NoError(t, forge.CheckAccelerator(context.Background(), e.WithDevice("cuda:0")))
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().WithResponses(`{"a":1}`, `{"a":2}`)
	ctx := context.Background()
	req := &llm.ChatRequest{Model: "m", Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}}

	for _, want := range []string{`{"a":1}`, `{"a":2}`, `{"a":2}`} {
		resp, err := p.Completion(ctx, req)
		require.NoError(t, err)
		content, finish, ok := resp.FirstContent()
		require.True(t, ok)
		assert.Equal(t, want, content)
		assert.Equal(t, "stop", finish)
	}
	assert.Equal(t, 3, p.CallCount())

	status, err := p.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	p.WithError(errors.New("down")).WithHealth(false, nil)
	_, err = p.Completion(ctx, req)
	assert.Error(t, err)
	status, _ = p.HealthCheck(ctx)
	assert.False(t, status.Healthy)
}
