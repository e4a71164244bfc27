package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/v-sekai/jsonforge/config"
	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/types"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *recordingObserver) RecordStoreQuery(op string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}

func newMemoryStore(t *testing.T, observer QueryObserver) *GormRunStore {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// :memory: 每个连接一份库，固定单连接
	db, err := NewDB(gdb, PoolConfig{MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewRunStore(context.Background(), db, observer, zap.NewNop())
	require.NoError(t, err)
	return s
}

func wandResult() *forge.Result {
	return &forge.Result{
		Record:     forge.RecordOf("name", "Wand", "weight", int64(5)),
		Prompt:     "Make a magic item name: Wand",
		SubSchemas: 3,
		Generated:  2,
		Skipped: []forge.SkipRecord{
			{Key: "color", Stage: forge.StageSubSchema, Reason: "invalid"},
		},
		FedBack:  []string{"name"},
		Duration: 1500 * time.Millisecond,
	}
}

func TestNewRun_FromResult(t *testing.T) {
	root := schema.MustParse(`{"type":"object","properties":{"name":{"type":"string"},"weight":{"type":"integer"}}}`)

	run, err := NewRun(ModeSingle, "llama", "Make a magic item", root, true, wandResult(), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, `{"name":"Wand","weight":5}`, run.Result)
	assert.Equal(t, root.String(), run.Schema)
	assert.Equal(t, "Make a magic item name: Wand", run.FinalPrompt)
	assert.Equal(t, `["name"]`, run.FedBack)
	assert.JSONEq(t, `[{"job":0,"key":"color","stage":"sub_schema","reason":"invalid"}]`, run.Skipped)
	assert.Equal(t, int64(1500), run.DurationMS)
	assert.True(t, run.Feedback)
}

func TestNewRun_Failed(t *testing.T) {
	run, err := NewRun(ModeRefine, "", "p", nil, false, nil, errors.New("engine down"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "engine down", run.Error)
	assert.Empty(t, run.Result)
	assert.Empty(t, run.Schema)
}

func TestRunStore_SaveAndGet(t *testing.T) {
	obs := &recordingObserver{}
	s := newMemoryStore(t, obs)
	ctx := context.Background()

	run, err := NewRun(ModeSingle, "llama", "Make a magic item", schema.NewObjectSchema(), false, wandResult(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, run))
	assert.False(t, run.CreatedAt.IsZero())

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, `{"name":"Wand","weight":5}`, got.Result)
	assert.Equal(t, 3, got.SubSchemas)
	assert.Equal(t, ModeSingle, got.Mode)

	assert.Equal(t, []string{"save", "get"}, obs.ops)
}

func TestRunStore_SaveAssignsID(t *testing.T) {
	s := newMemoryStore(t, nil)
	run := &Run{Mode: ModeBatch, Status: StatusSucceeded, Prompt: "p", Schema: "{}"}
	require.NoError(t, s.Save(context.Background(), run))
	assert.Len(t, run.ID, 36)
}

func TestRunStore_GetNotFound(t *testing.T) {
	s := newMemoryStore(t, nil)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestRunStore_List(t *testing.T) {
	s := newMemoryStore(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		status := StatusSucceeded
		if i%2 == 1 {
			status = StatusFailed
		}
		require.NoError(t, s.Save(ctx, &Run{
			Mode:      ModeSingle,
			Status:    status,
			Prompt:    "p",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, total, err := s.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt), "newest first")

	runs, total, err = s.List(ctx, ListOptions{Status: StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, runs, 2)

	runs, _, err = s.List(ctx, ListOptions{Limit: 10, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpen_SQLiteFile(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	cfg.Name = filepath.Join(t.TempDir(), "runs.db")

	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
	s, err := NewRunStore(context.Background(), db, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), &Run{Mode: ModeSingle, Status: StatusSucceeded}))

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Ping(context.Background()), ErrClosed)
}
