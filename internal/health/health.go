package health

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"filecargo/backend/internal/storage"
)

// checkTimeout 单项检查超时时间
const checkTimeout = 5 * time.Second

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	root   string
	logger *zap.Logger
	checks map[string]healthcheck.Check
}

// NewHealthChecker 创建健康检查器。
// 存活检查：存储根目录可写；就绪检查：记录存储可用。
func NewHealthChecker(store storage.Store, root string, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		root:   root,
		logger: logger,
		checks: make(map[string]healthcheck.Check),
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	storageCheck := healthcheck.Timeout(StorageRootCheck(hc.root), checkTimeout)
	hc.health.AddLivenessCheck("storage", storageCheck)
	hc.checks["storage"] = storageCheck

	if hc.store != nil {
		databaseCheck := healthcheck.Timeout(hc.store.Health, checkTimeout)
		hc.health.AddReadinessCheck("database", databaseCheck)
		hc.checks["database"] = databaseCheck
	}
}

// Handler 返回健康检查处理器，提供 /live 与 /ready 两个端点
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行全部检查，返回每项检查的结果
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string, len(hc.checks)+1)

	for name, check := range hc.checks {
		if err := check(); err != nil {
			hc.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results[name] = "OK"
		}
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}

// IsHealthy 所有检查均通过时返回 nil，否则返回第一个失败项（按名称排序）
func (hc *HealthChecker) IsHealthy() error {
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := hc.checks[name](); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// StorageRootCheck 检查存储根目录存在且可写
func StorageRootCheck(root string) healthcheck.Check {
	return func() error {
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return errors.New("storage root is not a directory")
		}

		probe, err := os.CreateTemp(root, ".health-*")
		if err != nil {
			return err
		}
		name := probe.Name()
		probe.Close()
		return os.Remove(name)
	}
}
