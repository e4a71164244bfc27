package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/types"
)

// =============================================================================
// 📜 运行记录
// =============================================================================

// Run modes.
const (
	ModeSingle = "single"
	ModeRefine = "refine"
	ModeBatch  = "batch"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run 一次生成的持久化记录。JSON 内容按原样文本存储，保留 key 顺序。
type Run struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Mode        string    `gorm:"size:16;index" json:"mode"`
	Status      string    `gorm:"size:16;index" json:"status"`
	Model       string    `gorm:"size:128" json:"model,omitempty"`
	Prompt      string    `gorm:"type:text" json:"prompt"`
	FinalPrompt string    `gorm:"type:text" json:"final_prompt,omitempty"`
	Schema      string    `gorm:"type:text" json:"schema"`
	Result      string    `gorm:"type:text" json:"result,omitempty"`
	Skipped     string    `gorm:"type:text" json:"skipped,omitempty"`
	FedBack     string    `gorm:"type:text" json:"fed_back,omitempty"`
	Feedback    bool      `json:"prompt_feedback"`
	SubSchemas  int       `json:"sub_schemas"`
	Generated   int       `json:"generated"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName 表名
func (Run) TableName() string { return "jsonforge_runs" }

// NewRun 从一次运行的输入与结果构造记录，runErr 非 nil 时记为失败
func NewRun(mode, model, prompt string, root *schema.Node, feedback bool, res *forge.Result, runErr error) (*Run, error) {
	run := &Run{
		ID:       uuid.NewString(),
		Mode:     mode,
		Model:    model,
		Prompt:   prompt,
		Feedback: feedback,
		Status:   StatusSucceeded,
	}
	if root != nil {
		run.Schema = root.String()
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	if res == nil {
		return run, nil
	}

	run.FinalPrompt = res.Prompt
	run.SubSchemas = res.SubSchemas
	run.Generated = res.Generated
	run.DurationMS = res.Duration.Milliseconds()
	if res.Record != nil {
		run.Result = res.Record.String()
	}
	if len(res.Skipped) > 0 {
		b, err := json.Marshal(res.Skipped)
		if err != nil {
			return nil, fmt.Errorf("encode skipped: %w", err)
		}
		run.Skipped = string(b)
	}
	if len(res.FedBack) > 0 {
		b, err := json.Marshal(res.FedBack)
		if err != nil {
			return nil, fmt.Errorf("encode fed back keys: %w", err)
		}
		run.FedBack = string(b)
	}
	return run, nil
}

// QueryObserver 接收存储操作耗时，metrics.Collector 实现此接口
type QueryObserver interface {
	RecordStoreQuery(operation string, duration time.Duration)
}

// 分页上限
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListOptions 分页参数
type ListOptions struct {
	Limit  int
	Offset int
	Status string
}

// RunStore 运行记录存储
type RunStore interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, opts ListOptions) ([]Run, int64, error)
}

// GormRunStore 基于 GORM 的 RunStore
type GormRunStore struct {
	db       *DB
	observer QueryObserver
	logger   *zap.Logger
}

// NewRunStore 创建存储并自动迁移表结构
func NewRunStore(ctx context.Context, db *DB, observer QueryObserver, logger *zap.Logger) (*GormRunStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.Gorm().WithContext(ctx).AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrate runs: %w", err)
	}
	return &GormRunStore{
		db:       db,
		observer: observer,
		logger:   logger.With(zap.String("component", "run_store")),
	}, nil
}

func (s *GormRunStore) observe(op string, start time.Time) {
	if s.observer != nil {
		s.observer.RecordStoreQuery(op, time.Since(start))
	}
}

// Save 写入一条记录，ID 为空时生成 UUID
func (s *GormRunStore) Save(ctx context.Context, run *Run) error {
	defer s.observe("save", time.Now())

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	err := s.db.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	s.logger.Debug("run saved", zap.String("id", run.ID), zap.String("status", run.Status))
	return nil
}

// Get 按 ID 查询，不存在时返回 types.ErrNotFound
func (s *GormRunStore) Get(ctx context.Context, id string) (*Run, error) {
	defer s.observe("get", time.Now())

	var run Run
	err := s.db.Gorm().WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// List 按创建时间倒序分页列出记录，返回总数
func (s *GormRunStore) List(ctx context.Context, opts ListOptions) ([]Run, int64, error) {
	defer s.observe("list", time.Now())

	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultListLimit
	case opts.Limit > MaxListLimit:
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := func() *gorm.DB {
		q := s.db.Gorm().WithContext(ctx).Model(&Run{})
		if opts.Status != "" {
			q = q.Where("status = ?", opts.Status)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	var runs []Run
	err := query().Order("created_at DESC").Order("id").Limit(opts.Limit).Offset(opts.Offset).Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return runs, total, nil
}
