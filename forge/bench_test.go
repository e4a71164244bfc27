package forge

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/schema"
)

// BenchmarkMerger_Merge 测试片段合并性能
func BenchmarkMerger_Merge(b *testing.B) {
	fragments := make([]*Record, 32)
	for i := range fragments {
		fragments[i] = RecordOf(fmt.Sprintf("k%d", i), i)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := NewMerger("p", true)
		for _, f := range fragments {
			m.Merge(f)
		}
	}
}

// BenchmarkPipeline_Run 测试不含引擎开销的流水线性能
func BenchmarkPipeline_Run(b *testing.B) {
	root := schema.NewObjectSchema()
	for i := 0; i < 16; i++ {
		root.AddProperty(fmt.Sprintf("f%02d", i), schema.NewStringSchema())
	}
	engine := EngineFunc(func(_ context.Context, req *GenerateRequest) (*Record, error) {
		key := schema.SubSchemaKey(req.Schema)
		return RecordOf(key, "v"), nil
	})
	p := NewPipeline(engine, WithLogger(zap.NewNop()), WithSubSchemaValidation(false))
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Run(ctx, "prompt", root); err != nil {
			b.Fatal(err)
		}
	}
}
