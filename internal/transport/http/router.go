package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"filecargo/backend/internal/auth/jwt"
	"filecargo/backend/internal/health"
	"filecargo/backend/internal/middleware"
	"filecargo/backend/internal/monitoring"
	"filecargo/backend/internal/service"
	"filecargo/backend/internal/storage/filesystem"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Attachments    *service.AttachmentService
	Sweeper        *service.Sweeper
	Files          *filesystem.Store
	Health         *health.HealthChecker
	Metrics        *monitoring.Metrics
	JWTManager     *jwt.Manager // 为 nil 时接口不做认证
	AllowedOrigins []string
	BodyLimit      int64
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(deps.BodyLimit))

	if len(deps.AllowedOrigins) > 0 {
		corsConfig := gincors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "X-Max-Body-Size"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		// 允许所有来源时不能携带凭证
		for _, origin := range corsConfig.AllowOrigins {
			if origin == "*" {
				corsConfig.AllowCredentials = false
				break
			}
		}
		router.Use(gincors.New(corsConfig))
	}

	// 健康检查与监控指标
	if deps.Health != nil {
		router.GET("/live", gin.WrapH(deps.Health.Handler()))
		router.GET("/ready", gin.WrapH(deps.Health.Handler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	handler := NewAttachmentHandler(deps.Attachments, deps.Sweeper, deps.Files)
	auth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	read := auth.RequireScope(jwt.ScopeRead)
	write := auth.RequireScope(jwt.ScopeWrite)

	v1 := router.Group("/api/v1")
	{
		// ========== Attachment Routes ==========
		files := v1.Group("/files/:type/:id")
		{
			files.GET("", read, handler.List)
			files.DELETE("", write, handler.DestroyAll)
			files.GET("/:name", read, handler.Get)
			files.DELETE("/:name", write, handler.Destroy)
		}

		// ========== Maintenance Routes ==========
		v1.POST("/sweeps/:type", write, handler.Sweep)
		v1.GET("/stats", read, handler.Stats)
	}

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "接口不存在")
	})

	return router
}
