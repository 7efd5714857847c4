package api

import (
	"context"
	"net/http"
	"time"

	"shopadmin/config"
	"shopadmin/internal/api/admin"
	"shopadmin/internal/api/apis"
	"shopadmin/internal/api/handler"
	"shopadmin/internal/middleware"
	"shopadmin/internal/repository"
	"shopadmin/internal/service"
	"shopadmin/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies 路由依赖的服务
type Dependencies struct {
	Users          repository.UserRepository
	OrderService   *service.OrderService
	PaymentService *service.PaymentService
	ConfigService  *service.PaymentConfigService
	// Gatherer 为空时不注册 /metrics
	Gatherer prometheus.Gatherer
	// HealthChecks 依赖检查，任一失败时 /health 返回503
	HealthChecks map[string]func(ctx context.Context) error
}

// health 依次执行依赖检查
func health(checks map[string]func(ctx context.Context) error, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		code := http.StatusOK
		status := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("依赖检查失败", "dependency", name, "error", err)
				status[name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "up"
		}
		overall := "ok"
		if code != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(code, gin.H{"status": overall, "dependencies": status})
	}
}

// SetupRouter 设置API路由
func SetupRouter(cfg *config.Config, logger *logger.Logger, deps Dependencies) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	// 初始化处理器
	orderHandler := handler.NewOrderHandler(deps.OrderService, deps.PaymentService, logger)
	paymentHandler := handler.NewPaymentHandler(deps.OrderService, deps.PaymentService, logger)
	orderAdminHandler := admin.NewOrderAdminHandler(deps.OrderService, deps.PaymentService, logger)
	configAdminHandler := admin.NewPaymentConfigAdminHandler(deps.ConfigService, logger)

	// 健康检查
	router.GET("/health", health(deps.HealthChecks, logger))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API版本v1
	v1 := router.Group("/api/v1")
	apis.RegisterPublicRoutes(v1, paymentHandler)

	authRouter := v1.Group("")
	authRouter.Use(middleware.UserAuth(deps.Users, logger))
	apis.RegisterAuthRoutes(authRouter, orderHandler, paymentHandler)

	// 管理员路由与用户路由共用路径前缀
	adminRouter := v1.Group("")
	adminRouter.Use(middleware.AdminAuth(deps.Users, logger))
	admin.RegisterAdminRoutes(adminRouter, orderAdminHandler, configAdminHandler)

	return router
}
