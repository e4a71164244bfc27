package testutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/types"
)

func TestHelpers(t *testing.T) {
	ctx := TestContext(t)
	_, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.Error(t, CancelledContext().Err())

	AssertJSONEqual(t, map[string]any{"a": 1, "b": "x"}, map[string]any{"b": "x", "a": 1})
	AssertRecordJSON(t, `{"b":1,"a":2}`, forge.RecordOf("b", 1, "a", 2))
	AssertErrorCode(t, types.WrapError(types.ErrGeneration, "x", errors.New("y")), types.ErrGeneration)
	assert.Equal(t, map[string]any{"k": "v"}, MustParseJSON(t, MustJSON(t, map[string]string{"k": "v"})))

	start := time.Now()
	AssertEventuallyTrue(t, func() bool { return time.Since(start) > 20*time.Millisecond }, time.Second)
}
