package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/monitoring"
	"filecargo/backend/internal/storage"
	"filecargo/backend/internal/storage/filesystem"
)

// SweeperOptions 孤儿文件清理配置
type SweeperOptions struct {
	Concurrency   int           // 并发删除数
	RatePerSecond float64       // 每秒最多删除的文件数，<= 0 表示不限速
	MinAge        time.Duration // 修改时间晚于此值的文件不处理，避免与进行中的提交冲突
}

// SweepResult 一次清理的结果
type SweepResult struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	DryRun   bool     `json:"dryRun"`
	Scanned  int      `json:"scanned"`
	Skipped  int      `json:"skipped"`
	Orphans  []string `json:"orphans"`
	Removed  int      `json:"removed"`
}

// Sweeper 删除没有对应记录的文件，以及提交中断后残留的临时文件
type Sweeper struct {
	repo    storage.StoredFileRepository
	files   *filesystem.Store
	opts    SweeperOptions
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewSweeper 创建孤儿文件清理器
func NewSweeper(repo storage.StoredFileRepository, files *filesystem.Store, opts SweeperOptions, log *zap.Logger, metrics *monitoring.Metrics) *Sweeper {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if log == nil {
		log = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Sweeper{
		repo:    repo,
		files:   files,
		opts:    opts,
		limiter: limiter,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Sweep 清理指定父实体类型的分类目录。dryRun 时只报告不删除。
func (s *Sweeper) Sweep(ctx context.Context, parentType string, dryRun bool) (*SweepResult, error) {
	category := domain.CategoryFor(parentType)
	result := &SweepResult{
		ID:       uuid.NewString(),
		Category: category,
		DryRun:   dryRun,
		Orphans:  make([]string, 0),
	}
	log := s.log.With(zap.String("sweep_id", result.ID), zap.String("category", category))

	// 同一分类下所有类型写法的记录都算有效
	rows, err := s.repo.ListByCategory(category)
	if err != nil {
		return nil, err
	}
	expected := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if fullPath, err := s.files.CanonicalPath(row); err == nil {
			expected[fullPath] = struct{}{}
		}
	}

	entries, err := s.files.ScanCategory(category)
	if err != nil {
		return nil, err
	}
	result.Scanned = len(entries)

	cutoff := s.now().Add(-s.opts.MinAge)
	var orphans []filesystem.Entry
	for _, entry := range entries {
		if !s.isOrphan(entry, expected) {
			continue
		}
		if entry.ModTime.After(cutoff) {
			result.Skipped++
			continue
		}
		orphans = append(orphans, entry)
		result.Orphans = append(result.Orphans, entry.Path)
	}

	if dryRun {
		log.Info("Sweep dry run finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("orphans", len(orphans)))
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, entry := range orphans {
		if err := s.limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			if err := s.files.Evict(entry); err != nil {
				s.metrics.RecordError("sweep")
				return err
			}
			s.metrics.RecordOrphanRemoved(category)
			mu.Lock()
			result.Removed++
			mu.Unlock()
			log.Debug("Removed orphaned file", zap.String("path", entry.Path))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("Sweep failed", zap.Int("removed", result.Removed), zap.Error(err))
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	log.Info("Sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("skipped", result.Skipped),
		zap.Int("removed", result.Removed))
	return result, nil
}

// isOrphan 文件名无法识别时只清理残留的临时文件
func (s *Sweeper) isOrphan(entry filesystem.Entry, expected map[string]struct{}) bool {
	if entry.Parsed == nil {
		return strings.HasPrefix(entry.Name, ".") && strings.HasSuffix(entry.Name, ".tmp")
	}
	_, ok := expected[entry.Path]
	return !ok
}
