package scheduler

import (
	"context"
	"sync"
	"time"

	"shopadmin/pkg/logger"
)

// 默认检查间隔
const defaultCheckInterval = time.Minute

// OrderExpirer 取消超时未支付订单
type OrderExpirer interface {
	ExpirePendingOrders(ctx context.Context, before time.Time) (int, error)
}

// OrderScheduler 订单调度器，定时取消超时未支付的订单并归还库存
type OrderScheduler struct {
	expirer     OrderExpirer
	expireAfter time.Duration
	interval    time.Duration
	logger      *logger.Logger
	now         func() time.Time

	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewOrderScheduler 创建订单调度器实例
func NewOrderScheduler(expirer OrderExpirer, expireAfter time.Duration, logger *logger.Logger) *OrderScheduler {
	interval := defaultCheckInterval
	if expireAfter > 0 && expireAfter < interval {
		interval = expireAfter
	}
	return &OrderScheduler{
		expirer:     expirer,
		expireAfter: expireAfter,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
		quit:        make(chan struct{}),
	}
}

// Start 启动订单调度器
func (s *OrderScheduler) Start() {
	s.wg.Add(1)
	go s.expireScheduler()
	s.logger.Info("订单调度器启动", "expire_after", s.expireAfter.String(), "interval", s.interval.String())
}

// Stop 停止订单调度器并等待当前批次结束
func (s *OrderScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.logger.Info("订单调度器停止")
	})
}

// expireScheduler 超时订单检查定时器
func (s *OrderScheduler) expireScheduler() {
	defer s.wg.Done()

	// 立即运行一次检查
	s.expireOrders()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expireOrders()
		case <-s.quit:
			return
		}
	}
}

// expireOrders 取消创建时间早于 now-expireAfter 的待支付订单
func (s *OrderScheduler) expireOrders() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	n, err := s.expirer.ExpirePendingOrders(ctx, s.now().Add(-s.expireAfter))
	if err != nil {
		s.logger.Error("超时订单取消失败", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("超时订单取消完成", "count", n)
	}
}
