package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/internal/cache"
)

// =============================================================================
// 💾 缓存引擎
// =============================================================================

const cacheType = "fragment"

// FragmentCache 片段缓存后端，cache.Manager 实现此接口
type FragmentCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheRecorder 接收命中/未命中，metrics.Collector 实现此接口
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedEngine 在内层引擎外加一层 Redis 缓存
type CachedEngine struct {
	inner    forge.Engine
	cache    FragmentCache
	ttl      time.Duration
	model    string
	recorder CacheRecorder
	logger   *zap.Logger
	group    singleflight.Group
}

// NewCachedEngine 创建缓存引擎。model 是内层引擎的默认模型，参与缓存 key。
func NewCachedEngine(inner forge.Engine, c FragmentCache, ttl time.Duration, model string, recorder CacheRecorder, logger *zap.Logger) *CachedEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEngine{
		inner:    inner,
		cache:    c,
		ttl:      ttl,
		model:    model,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "cached_engine")),
	}
}

// CacheKey 返回请求的缓存 key：sha256(模型, 预算, 子 schema, prompt)
func (e *CachedEngine) CacheKey(req *forge.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = e.model
	}
	schemaJSON, err := req.Schema.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode sub-schema: %w", err)
	}

	h := sha256.New()
	for _, part := range [][]byte{
		[]byte(model),
		[]byte(strconv.Itoa(req.MaxStringTokenLength)),
		schemaJSON,
		[]byte(req.Prompt),
	} {
		// 长度前缀避免拼接歧义
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write(part)
	}
	return "gen:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Generate 先查缓存，未命中时调用内层引擎并回写
func (e *CachedEngine) Generate(ctx context.Context, req *forge.GenerateRequest) (*forge.Record, error) {
	if req == nil || req.Schema == nil {
		return e.inner.Generate(ctx, req)
	}
	key, err := e.CacheKey(req)
	if err != nil {
		return nil, err
	}

	if rec, ok := e.lookup(ctx, key); ok {
		return rec, nil
	}

	// 合并调用不继承首个调用方的取消；各调用方仍按自己的 ctx 放弃等待
	flightCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		rec, err := e.inner.Generate(flightCtx, req)
		if err != nil {
			return nil, err
		}
		e.store(flightCtx, key, rec)
		return rec, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	rec := res.Val.(*forge.Record)
	if res.Shared {
		rec = rec.Clone()
	}
	return rec, nil
}

func (e *CachedEngine) lookup(ctx context.Context, key string) (*forge.Record, bool) {
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			e.logger.Warn("fragment cache read failed", zap.Error(err))
		}
		e.miss()
		return nil, false
	}
	rec, err := forge.ParseRecord(data)
	if err != nil {
		e.logger.Warn("discarding corrupt cached fragment", zap.String("key", key), zap.Error(err))
		e.miss()
		return nil, false
	}
	if e.recorder != nil {
		e.recorder.RecordCacheHit(cacheType)
	}
	return rec, true
}

func (e *CachedEngine) store(ctx context.Context, key string, rec *forge.Record) {
	data, err := rec.MarshalJSON()
	if err != nil {
		e.logger.Warn("encode fragment for cache", zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
		e.logger.Warn("fragment cache write failed", zap.Error(err))
	}
}

func (e *CachedEngine) miss() {
	if e.recorder != nil {
		e.recorder.RecordCacheMiss(cacheType)
	}
}

// Accelerator 转发内层引擎的设备信息
func (e *CachedEngine) Accelerator(ctx context.Context) (string, error) {
	if r, ok := e.inner.(forge.AcceleratorReporter); ok {
		return r.Accelerator(ctx)
	}
	return "", fmt.Errorf("inner engine does not report an accelerator")
}

// Inner 返回内层引擎
func (e *CachedEngine) Inner() forge.Engine { return e.inner }
