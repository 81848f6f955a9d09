package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"filecargo/backend/internal/auth/jwt"
	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/health"
	"filecargo/backend/internal/storage/filesystem"
	httptransport "filecargo/backend/internal/transport/http"
)

// command 子命令
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

var commands = []command{
	{"migrate", "创建或更新文件记录表", runMigrate},
	{"verify", "检查文件记录表结构", runVerify},
	{"attach", "保存文件到父实体的附件位置", runAttach},
	{"url", "输出附件的公开访问地址", runURL},
	{"remove", "删除附件文件及其记录", runRemove},
	{"sweep", "清理没有记录的孤儿文件", runSweep},
	{"stats", "统计存储目录的文件数量与大小", runStats},
	{"health", "执行一次健康检查", runHealth},
	{"serve", "启动管理接口、健康检查与监控指标服务", runServe},
	{"token", "签发管理接口访问令牌", runToken},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err := cmd.run(ctx, os.Args[2:])
		stop()
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "cargoctl %s: %v\n", name, err)
			os.Exit(1)
		}
		return
	}

	if name != "help" && name != "-h" && name != "--help" {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "用法: cargoctl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "配置通过 CARGO_ 前缀的环境变量或 .env 文件提供。")
}

// ownerFlags 父实体相关参数
type ownerFlags struct {
	parentType string
	parentID   int64
	name       string
}

func (o *ownerFlags) bind(fs *pflag.FlagSet, withName bool) {
	fs.StringVarP(&o.parentType, "type", "t", "", "父实体类型，如 Image")
	fs.Int64VarP(&o.parentID, "id", "i", 0, "父实体主键")
	if withName {
		fs.StringVarP(&o.name, "name", "n", "", "附件名称，如 original")
	}
}

func (o *ownerFlags) owner() domain.Owner {
	return domain.Owner{Type: o.parentType, ID: o.parentID}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMigrate(ctx context.Context, args []string) error {
	var auto bool
	fs := newFlagSet("migrate")
	fs.BoolVar(&auto, "auto", false, "按模型自动建表，不记录迁移版本")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.requireDatabase()
	if err != nil {
		return err
	}
	if auto {
		if err := store.Migrate(); err != nil {
			return err
		}
		a.log.Info("Migration completed", zap.String("table", store.Table()))
		return nil
	}

	results, err := store.MigrateVersioned(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		a.log.Info("Applied migration",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
	}
	a.log.Info("Migration completed",
		zap.String("table", store.Table()),
		zap.Int("applied", len(results)))
	return nil
}

func runVerify(_ context.Context, args []string) error {
	fs := newFlagSet("verify")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.requireDatabase()
	if err != nil {
		return err
	}
	if err := store.Verify(); err != nil {
		return err
	}
	a.log.Info("Schema verified", zap.String("table", store.Table()))
	return nil
}

func runAttach(_ context.Context, args []string) error {
	var (
		of       ownerFlags
		path     string
		filename string
		allow    []string
	)
	fs := newFlagSet("attach")
	of.bind(fs, true)
	fs.StringVarP(&path, "file", "f", "", "源文件路径，\"-\" 表示标准输入")
	fs.StringVar(&filename, "filename", "", "原始文件名（从标准输入读取时必填）")
	fs.StringSliceVar(&allow, "allow", nil, "允许的扩展名列表，如 jpg,png")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if path == "" {
		return errors.New("--file is required")
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	if len(allow) > 0 {
		if err := a.svc.RestrictExtensions(of.name, allow...); err != nil {
			return err
		}
	}

	var src filesystem.Source
	switch {
	case path == "-":
		if filename == "" {
			return errors.New("--filename is required when reading from stdin")
		}
		src = filesystem.FromReader(filename, os.Stdin)
	case filename != "":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		src = filesystem.FromReader(filename, f)
	default:
		src = filesystem.FromPath(path)
	}

	att, err := a.svc.Attach(of.owner(), of.name, src)
	if err != nil {
		return err
	}

	fullPath, err := att.CanonicalPath()
	if err != nil {
		return err
	}
	out := map[string]any{
		"id":   att.File().ID,
		"key":  att.File().Key,
		"path": fullPath,
	}
	if url, err := att.URL(); err == nil {
		out["url"] = url
	}
	return printJSON(out)
}

func runURL(_ context.Context, args []string) error {
	var of ownerFlags
	fs := newFlagSet("url")
	of.bind(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	att, err := a.svc.Load(of.owner(), of.name)
	if err != nil {
		return err
	}
	url, err := a.svc.URL(att)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func runRemove(_ context.Context, args []string) error {
	var of ownerFlags
	fs := newFlagSet("remove")
	of.bind(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	// 未指定名称时删除父实体的全部附件
	if of.name == "" {
		count, err := a.svc.DestroyAll(of.owner())
		if err != nil {
			return err
		}
		return printJSON(map[string]int{"removed": count})
	}

	att, err := a.svc.Load(of.owner(), of.name)
	if err != nil {
		return err
	}
	if err := a.svc.Destroy(att); err != nil {
		return err
	}
	return printJSON(map[string]int{"removed": 1})
}

func runSweep(ctx context.Context, args []string) error {
	var (
		parentTypes []string
		dryRun      bool
	)
	fs := newFlagSet("sweep")
	fs.StringSliceVarP(&parentTypes, "type", "t", nil, "父实体类型列表，如 Image,Document")
	fs.BoolVar(&dryRun, "dry-run", false, "只报告不删除")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(parentTypes) == 0 {
		return errors.New("--type is required")
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	sweeper := a.newSweeper()
	results := make([]any, 0, len(parentTypes))
	for _, parentType := range parentTypes {
		result, err := sweeper.Sweep(ctx, parentType, dryRun)
		if err != nil {
			return err
		}
		results = append(results, result)
	}
	return printJSON(results)
}

func runStats(_ context.Context, args []string) error {
	fs := newFlagSet("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.files.GetStorageStats()
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runHealth(_ context.Context, args []string) error {
	fs := newFlagSet("health")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	hc := health.NewHealthChecker(a.store, a.files.Root(), a.log)
	results := hc.CheckHealth()

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-10s %s\n", name, results[name])
	}
	return hc.IsHealthy()
}

func runServe(ctx context.Context, args []string) error {
	var (
		addr        string
		interval    time.Duration
		parentTypes []string
	)
	fs := newFlagSet("serve")
	fs.StringVar(&addr, "addr", "", "监听地址，默认使用 CARGO_HTTP_ADDR")
	fs.DurationVar(&interval, "sweep-interval", 0, "定期清理间隔，0 表示不清理")
	fs.StringSliceVar(&parentTypes, "sweep-type", nil, "定期清理的父实体类型列表")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if interval > 0 && len(parentTypes) == 0 {
		return errors.New("--sweep-type is required with --sweep-interval")
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}
	manager, err := a.jwtManager()
	if err != nil {
		return err
	}
	if manager == nil {
		a.log.Warn("CARGO_AUTH_JWT_SECRET not set, management API is unauthenticated")
	}

	if !a.cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	sweeper := a.newSweeper()
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Attachments:    a.svc,
		Sweeper:        sweeper,
		Files:          a.files,
		Health:         health.NewHealthChecker(a.store, a.files.Root(), a.log),
		Metrics:        a.metrics,
		JWTManager:     manager,
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
		BodyLimit:      a.cfg.HTTP.BodyLimit,
		Logger:         a.log,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // 清理请求可能耗时较长
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.log.Info("HTTP server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	if interval > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case <-ticker.C:
					for _, parentType := range parentTypes {
						if _, err := sweeper.Sweep(groupCtx, parentType, false); err != nil && groupCtx.Err() == nil {
							a.log.Error("Scheduled sweep failed",
								zap.String("parent_type", parentType),
								zap.Error(err))
						}
					}
				}
			}
		})
		a.log.Info("Scheduled sweep enabled",
			zap.Duration("interval", interval),
			zap.String("types", strings.Join(parentTypes, ",")))
	}

	group.Go(func() error {
		<-groupCtx.Done()
		a.log.Info("Shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	return group.Wait()
}

func runToken(_ context.Context, args []string) error {
	var (
		subject string
		write   bool
	)
	fs := newFlagSet("token")
	fs.StringVarP(&subject, "subject", "s", "", "令牌主体，如操作员名称")
	fs.BoolVarP(&write, "write", "w", false, "授予删除与清理权限")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if subject == "" {
		return errors.New("--subject is required")
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	manager, err := a.jwtManager()
	if err != nil {
		return err
	}
	if manager == nil {
		return errors.New("CARGO_AUTH_JWT_SECRET is not set")
	}

	scopes := []string{jwt.ScopeRead}
	if write {
		scopes = append(scopes, jwt.ScopeWrite)
	}
	token, err := manager.GenerateToken(subject, scopes...)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"token":     token,
		"scopes":    scopes,
		"expiresIn": a.cfg.Auth.TokenExpiry.String(),
	})
}
