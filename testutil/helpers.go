// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	testutil.AssertJSONEqual(t, expected, actual)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertJSONEqual 断言两个值的 JSON 表示语义相等（忽略 key 顺序）
func AssertJSONEqual(t testing.TB, expected, actual any) {
	t.Helper()
	assert.JSONEq(t, string(MustJSON(t, expected)), string(MustJSON(t, actual)))
}

// AssertRecordJSON 断言记录的紧凑 JSON 文本完全一致（包括 key 顺序）
func AssertRecordJSON(t testing.TB, expected string, rec *forge.Record) {
	t.Helper()
	require.NotNil(t, rec)
	assert.Equal(t, expected, rec.String())
}

// AssertErrorCode 断言 err 链中带有指定错误码
func AssertErrorCode(t testing.TB, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, types.GetErrorCode(err), "error: %v", err)
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	assert.Eventually(t, condition, timeout, 10*time.Millisecond)
}

// =============================================================================
// 📦 数据辅助
// =============================================================================

// MustJSON 序列化 v，失败时终止测试
func MustJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// MustParseJSON 反序列化 data 为 map，失败时终止测试
func MustParseJSON(t testing.TB, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
