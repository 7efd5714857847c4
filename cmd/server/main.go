package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopadmin/config"
	"shopadmin/internal/api"
	"shopadmin/internal/event"
	"shopadmin/internal/metrics"
	"shopadmin/internal/payment"
	"shopadmin/internal/repository"
	"shopadmin/internal/repository/memory"
	"shopadmin/internal/scheduler"
	"shopadmin/internal/service"
	"shopadmin/pkg/async"
	"shopadmin/pkg/cache"
	"shopadmin/pkg/database"
	"shopadmin/pkg/logger"
	"shopadmin/pkg/network"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// storage 存储后端
type storage struct {
	uow      repository.UnitOfWork
	orders   repository.OrderRepository
	configs  repository.PaymentConfigRepository
	users    repository.UserRepository
	cache    cache.Cache
	checks   map[string]func(ctx context.Context) error
	closeFns []func()
}

func (s *storage) close() {
	for i := len(s.closeFns) - 1; i >= 0; i-- {
		s.closeFns[i]()
	}
}

// openMySQL 连接 MySQL 与 Redis，按配置执行迁移
func openMySQL(cfg *config.Config, logger *logger.Logger) (*storage, error) {
	if cfg.Database.MigrateOnStart {
		version, err := database.Migrate(cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("数据库迁移完成", "version", version)
	}

	db, err := database.NewMySQLConnection(cfg.Database)
	if err != nil {
		return nil, err
	}
	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	products := repository.NewProductRepository(db)
	orders := repository.NewOrderRepository(db)
	return &storage{
		uow:     repository.NewUnitOfWork(db, products, orders),
		orders:  orders,
		configs: repository.NewPaymentConfigRepository(db),
		users:   repository.NewUserRepository(db),
		cache:   cache.NewRedisCache(redisClient, "shopadmin"),
		checks: map[string]func(ctx context.Context) error{
			"mysql": db.PingContext,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		closeFns: []func(){
			func() { db.Close() },
			func() { redisClient.Close() },
		},
	}, nil
}

// openMemory 内存存储，数据不持久化
func openMemory() *storage {
	store := memory.NewStore()
	return &storage{
		uow:     store.UnitOfWork(),
		orders:  store.Repositories().Orders,
		configs: store.PaymentConfigs(),
		users:   store.Users(),
		checks:  map[string]func(ctx context.Context) error{},
	}
}

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 初始化日志
	logger := logger.NewLoggerWithConfig(cfg.LogLevel, cfg.LogFile)
	defer logger.Close()

	// 初始化存储
	var store *storage
	if cfg.Storage == "memory" {
		logger.Warn("使用内存存储，重启后数据丢失")
		store = openMemory()
	} else {
		store, err = openMySQL(cfg, logger)
		if err != nil {
			logger.Fatal("初始化存储失败", "error", err)
		}
	}
	defer store.close()

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 订单事件：异步投递到 Kafka，未配置时丢弃
	publisher := event.NewNopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, logger)
		store.checks["kafka"] = func(ctx context.Context) error {
			return network.AnyReachable(ctx, cfg.Kafka.Brokers, 2*time.Second)
		}
	}
	worker := async.NewWorker(1000, logger)
	worker.Start(4)
	emitter := event.NewAsyncEmitter(publisher, worker, logger)

	// 初始化服务
	var tokens payment.TokenStore
	if store.cache != nil {
		tokens = cache.TokenStore{Cache: store.cache}
	}
	orderService := service.NewOrderService(store.uow, store.orders, emitter, m, logger)
	paymentService := service.NewPaymentService(store.orders, store.configs, orderService, store.cache, logger, service.PaymentOptions{
		Timeout:       cfg.Payment.Timeout,
		NotifyBaseURL: cfg.Payment.NotifyBaseURL,
		HTTPClient:    &http.Client{Timeout: cfg.Payment.Timeout},
		Tokens:        tokens,
		Emitter:       emitter,
		Metrics:       m,
	})
	configService := service.NewPaymentConfigService(store.configs, store.cache, logger)

	// 超时订单自动取消
	var orderScheduler *scheduler.OrderScheduler
	if cfg.Order.ExpireAfter > 0 {
		orderScheduler = scheduler.NewOrderScheduler(orderService, cfg.Order.ExpireAfter, logger)
		orderScheduler.Start()
	}

	// 初始化API路由
	router := api.SetupRouter(cfg, logger, api.Dependencies{
		Users:          store.users,
		OrderService:   orderService,
		PaymentService: paymentService,
		ConfigService:  configService,
		Gatherer:       registry,
		HealthChecks:   store.checks,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: router,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info(fmt.Sprintf("服务器启动于端口: %d", cfg.APIPort), "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("启动服务器失败", "error", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器被强制关闭", "error", err)
	}
	if orderScheduler != nil {
		orderScheduler.Stop()
	}
	// 先停止工作器，让排队中的事件投递完成，再关闭 Kafka 连接
	worker.Stop()
	if err := publisher.Close(); err != nil {
		logger.Error("关闭事件发布器失败", "error", err)
	}

	logger.Info("服务器已正常退出")
}
