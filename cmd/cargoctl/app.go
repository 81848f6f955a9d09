package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"filecargo/backend/internal/auth/jwt"
	"filecargo/backend/internal/cache"
	"filecargo/backend/internal/config"
	"filecargo/backend/internal/logger"
	"filecargo/backend/internal/monitoring"
	"filecargo/backend/internal/security"
	"filecargo/backend/internal/service"
	"filecargo/backend/internal/storage"
	"filecargo/backend/internal/storage/filesystem"
	"filecargo/backend/internal/storage/memory"
	sqlstore "filecargo/backend/internal/storage/sql"
)

var errDatabaseRequired = errors.New("this command requires CARGO_DATABASE_TYPE and CARGO_DATABASE_DSN")

// app 命令共享的依赖
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    storage.Store
	sqlStore *sqlstore.Store // 使用内存存储时为 nil
	files    *filesystem.Store
	metrics  *monitoring.Metrics
	svc      *service.AttachmentService
}

// newApp 加载配置并初始化存储层
func newApp(quiet bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		Compress:    true,
		Quiet:       quiet && cfg.Log.File != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: monitoring.NewMetrics(nil),
	}

	if cfg.Database.Type != "" {
		a.sqlStore, err = sqlstore.NewStore(sqlstore.Options{
			Driver:          cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			Table:           cfg.Database.Table,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			AutoMigrate:     cfg.Database.AutoMigrate,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database storage: %w", err)
		}
		a.store = a.sqlStore
		log.Debug("Using database storage",
			zap.String("type", cfg.Database.Type),
			zap.String("table", a.sqlStore.Table()))
	} else {
		a.store = memory.NewStore()
		log.Warn("Using memory storage, records are lost on exit")
	}

	if cfg.Cache.Size > 0 {
		a.store = cache.NewLocalCache(a.store, cfg.Cache.Size, cfg.Cache.TTL, a.metrics)
		log.Debug("Record cache enabled",
			zap.Int("size", cfg.Cache.Size),
			zap.Duration("ttl", cfg.Cache.TTL))
	}

	a.files, err = filesystem.NewStore(filesystem.Options{
		Root:       cfg.Storage.Root,
		URLPrefix:  cfg.Storage.URLPrefix,
		StagingDir: cfg.Storage.StagingDir,
		KeyLength:  cfg.Storage.KeyLength,
		DirMode:    cfg.Storage.DirMode,
		FileMode:   cfg.Storage.FileMode,
	}, log, a.metrics)
	if err != nil {
		a.store.Close()
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	a.svc = service.NewAttachmentService(a.store, a.files, log)
	if cfg.Security.ContentGuard {
		a.svc.UseContentGuard(security.NewContentGuard(cfg.Security.MaxFileSize, cfg.Security.AllowedMimeTypes...))
	}
	return a, nil
}

// requireDatabase 迁移与校验只对数据库存储有意义
func (a *app) requireDatabase() (*sqlstore.Store, error) {
	if a.sqlStore == nil {
		return nil, errDatabaseRequired
	}
	return a.sqlStore, nil
}

func (a *app) newSweeper() *service.Sweeper {
	return service.NewSweeper(a.store, a.files, service.SweeperOptions{
		Concurrency:   a.cfg.Sweep.Concurrency,
		RatePerSecond: a.cfg.Sweep.RatePerSecond,
		MinAge:        a.cfg.Sweep.MinAge,
	}, a.log, a.metrics)
}

// jwtManager 未配置密钥时返回 nil，管理接口不做认证
func (a *app) jwtManager() (*jwt.Manager, error) {
	if a.cfg.Auth.JWTSecret == "" {
		return nil, nil
	}
	return jwt.NewManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenExpiry)
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close storage", zap.Error(err))
	}
	_ = a.log.Sync()
}
