package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/event"
	"shopadmin/internal/metrics"
	"shopadmin/internal/model"
	"shopadmin/internal/payment"
	"shopadmin/internal/repository"
	"shopadmin/pkg/cache"
	"shopadmin/pkg/logger"
)

const (
	defaultPaymentTimeout = 10 * time.Second
	// 可用网关列表缓存时间
	gatewayListTTL = 5 * time.Minute
)

// PaymentOptions 支付服务的可选依赖
type PaymentOptions struct {
	Timeout       time.Duration
	NotifyBaseURL string
	HTTPClient    *http.Client
	Tokens        payment.TokenStore
	Factory       payment.Factory
	Emitter       event.Emitter
	Metrics       *metrics.Metrics
}

// PaymentService 支付编排：选择网关、处理回调、退款
type PaymentService struct {
	orders       repository.OrderRepository
	configs      repository.PaymentConfigRepository
	orderService *OrderService
	cache        cache.Cache
	logger       *logger.Logger

	factory       payment.Factory
	timeout       time.Duration
	notifyBaseURL string
	httpClient    *http.Client
	tokens        payment.TokenStore
	emitter       event.Emitter
	metrics       *metrics.Metrics
}

// NewPaymentService 创建支付服务，cache 可为空
func NewPaymentService(
	orders repository.OrderRepository,
	configs repository.PaymentConfigRepository,
	orderService *OrderService,
	cache cache.Cache,
	logger *logger.Logger,
	opts PaymentOptions,
) *PaymentService {
	s := &PaymentService{
		orders:        orders,
		configs:       configs,
		orderService:  orderService,
		cache:         cache,
		logger:        logger,
		factory:       opts.Factory,
		timeout:       opts.Timeout,
		notifyBaseURL: strings.TrimRight(opts.NotifyBaseURL, "/"),
		httpClient:    opts.HTTPClient,
		tokens:        opts.Tokens,
		emitter:       opts.Emitter,
		metrics:       opts.Metrics,
	}
	if s.factory == nil {
		s.factory = payment.New
	}
	if s.timeout <= 0 {
		s.timeout = defaultPaymentTimeout
	}
	if s.emitter == nil {
		s.emitter = event.NopEmitter{}
	}
	return s
}

// gateway 根据配置构造网关
func (s *PaymentService) gateway(name payment.Name, cfg *model.PaymentConfig) (payment.Gateway, error) {
	notifyURL := ""
	if s.notifyBaseURL != "" {
		notifyURL = s.notifyBaseURL + "/" + string(name)
	}
	return s.factory(name, cfg.Config, payment.Options{
		HTTPClient: s.httpClient,
		NotifyURL:  notifyURL,
		Tokens:     s.tokens,
	})
}

func (s *PaymentService) loadConfig(ctx context.Context, name payment.Name) (*model.PaymentConfig, error) {
	cfg, err := s.configs.GetByGateway(ctx, string(name))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound(constants.ErrConfigNotFound)
	}
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("获取支付配置失败: %w", err))
	}
	return cfg, nil
}

// upstreamError 网关调用错误归类，超时与未分类错误都视为网关失败
func upstreamError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Upstream(msg, err)
	}
	if kind := apperror.KindOf(err); kind != apperror.KindInternal {
		return err
	}
	return apperror.Upstream(msg, err)
}

// CreatePayment 为待支付订单发起支付，成功后记录所选网关
func (s *PaymentService) CreatePayment(ctx context.Context, orderID uint64, gateway string) (*payment.Handle, error) {
	name, ok := payment.ParseName(gateway)
	if !ok {
		return nil, apperror.Validation(constants.ErrUnsupportedGateway)
	}
	order, err := s.orderService.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, apperror.Conflict(constants.ErrStatusNotCorrect)
	}
	cfg, err := s.loadConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, apperror.Conflict(constants.ErrGatewayDisabled)
	}
	gw, err := s.gateway(name, cfg)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	handle, err := gw.CreatePayment(callCtx, order)
	s.metrics.GatewayCall(string(name), "create", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("发起支付失败", "order_no", order.OrderNo, "gateway", name, "error", err)
		return nil, upstreamError(constants.ErrPaymentAttemptFailed, err)
	}

	ok, err = s.orders.SetPaymentGateway(ctx, order.ID, string(name))
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("记录支付网关失败: %w", err))
	}
	if !ok {
		return nil, apperror.Conflict(constants.ErrStatusNotCorrect)
	}
	s.logger.Info("发起支付成功", "order_no", order.OrderNo, "gateway", name, "type", handle.Type)
	return handle, nil
}

// HandleCallback 验签后结算订单。重复通知返回订单当前状态，不重复处理
func (s *PaymentService) HandleCallback(ctx context.Context, gateway string, n *payment.Notification) (*model.Order, error) {
	name, ok := payment.ParseName(gateway)
	if !ok {
		s.metrics.Callback(gateway, "rejected")
		return nil, apperror.Trust(constants.ErrUnsupportedGateway)
	}
	order, err := s.verifyCallback(ctx, name, n)
	if err != nil {
		s.metrics.Callback(string(name), "rejected")
		s.logger.Warn("支付回调被拒绝", "gateway", name, "error", err)
		return nil, err
	}
	return order, nil
}

func (s *PaymentService) verifyCallback(ctx context.Context, name payment.Name, n *payment.Notification) (*model.Order, error) {
	// 网关被禁用后仍需接收已发起支付的回调
	cfg, err := s.loadConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateway(name, cfg)
	if err != nil {
		return nil, apperror.Trust(constants.ErrSignatureInvalid)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := gw.HandleCallback(callCtx, n)
	if err != nil {
		if kind := apperror.KindOf(err); kind == apperror.KindTrust || kind == apperror.KindUpstream {
			return nil, err
		}
		return nil, apperror.Trust(constants.ErrSignatureInvalid)
	}

	order, err := s.orders.GetByOrderNo(ctx, result.OrderNo)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound(constants.ErrOrderNotFound)
	}
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("获取订单失败: %w", err))
	}
	return s.settle(ctx, name, order, result)
}

// settle 待支付 -> 已支付，条件更新失败时按最新状态判断
func (s *PaymentService) settle(ctx context.Context, name payment.Name, order *model.Order, result *payment.CallbackResult) (*model.Order, error) {
	if done, err := s.checkSettled(name, order); done {
		return order, err
	}
	if !result.Amount.Equal(order.TotalAmount) {
		s.logger.Error("回调金额与订单金额不一致", "order_no", order.OrderNo, "paid", result.Amount.String(), "total", order.TotalAmount.String())
		return nil, apperror.Trust(constants.ErrAmountMismatch)
	}
	// 用户可能先后在多个网关发起支付，以实际完成支付的网关为准
	if recorded := order.Gateway(); recorded != "" && recorded != string(name) {
		s.logger.Warn("回调网关与最近发起的网关不同", "order_no", order.OrderNo, "recorded", recorded, "gateway", name)
	}

	ok, err := s.orders.MarkPaid(ctx, order.ID, string(name), result.TradeNo, result.PaidAt)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("更新支付状态失败: %w", err))
	}
	latest, err := s.orderService.getOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if done, err := s.checkSettled(name, latest); done {
			return latest, err
		}
		return nil, apperror.Conflict(constants.ErrStatusNotCorrect)
	}

	s.metrics.Callback(string(name), "paid")
	s.metrics.OrderTransition(string(model.OrderStatusPaid))
	s.emitter.Emit(event.OrderPaid, latest)
	s.logger.Info("订单支付成功", "order_no", latest.OrderNo, "gateway", name, "trade_no", result.TradeNo)
	return latest, nil
}

// checkSettled 已结算返回 (true, nil)；已取消返回 (true, 冲突错误)
func (s *PaymentService) checkSettled(name payment.Name, order *model.Order) (bool, error) {
	switch {
	case order.Status.Settled():
		s.metrics.Callback(string(name), "duplicate")
		s.logger.Info("重复的支付回调", "order_no", order.OrderNo, "status", order.Status)
		return true, nil
	case order.Status == model.OrderStatusCancelled:
		s.logger.Error("已取消订单收到支付回调，需要人工退款", "order_no", order.OrderNo, "gateway", name)
		return true, apperror.Conflict(constants.ErrOrderCancelled)
	}
	return false, nil
}

// Refund 对已支付订单全额退款，网关配置被禁用时仍允许退款
func (s *PaymentService) Refund(ctx context.Context, order *model.Order) (*payment.RefundResult, error) {
	if !order.Status.Settled() {
		return nil, apperror.Conflict(constants.ErrNotRefundable)
	}
	name, ok := payment.ParseName(order.Gateway())
	if !ok {
		return nil, apperror.Conflict(constants.ErrNoPaymentGateway)
	}
	cfg, err := s.loadConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateway(name, cfg)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	result, err := gw.Refund(callCtx, order)
	s.metrics.GatewayCall(string(name), "refund", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("退款失败", "order_no", order.OrderNo, "gateway", name, "error", err)
		return nil, upstreamError(constants.ErrRefundFailed, err)
	}
	s.emitter.Emit(event.OrderRefunded, order)
	s.logger.Info("退款成功", "order_no", order.OrderNo, "gateway", name, "refund_no", result.RefundNo)
	return result, nil
}

// RefundOrder 按订单ID退款
func (s *PaymentService) RefundOrder(ctx context.Context, orderID uint64) (*payment.RefundResult, error) {
	order, err := s.orderService.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.Refund(ctx, order)
}

// CancelOrder 取消订单，已支付订单先退款再取消
func (s *PaymentService) CancelOrder(ctx context.Context, orderID uint64) (*model.Order, *payment.RefundResult, error) {
	order, err := s.orderService.getOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Status != model.OrderStatusPaid {
		cancelled, err := s.orderService.CancelOrderFrom(ctx, orderID, order.Status)
		return cancelled, nil, err
	}

	refund, err := s.Refund(ctx, order)
	if err != nil {
		return nil, nil, err
	}
	cancelled, err := s.orderService.CancelOrderFrom(ctx, orderID, model.OrderStatusPaid)
	if err != nil {
		s.logger.Error("退款成功但取消订单失败", "order_no", order.OrderNo, "refund_no", refund.RefundNo, "error", err)
		return nil, refund, err
	}
	return cancelled, refund, nil
}

// GetAvailableGateways 已启用的网关列表，缓存5分钟
func (s *PaymentService) GetAvailableGateways(ctx context.Context) ([]model.GatewayOption, error) {
	if s.cache != nil {
		var options []model.GatewayOption
		hit, err := s.cache.GetJSON(ctx, s.cache.Key(gatewayListCacheKey), &options)
		if err != nil {
			s.logger.Warn("读取网关列表缓存失败", "error", err)
		} else if hit {
			return options, nil
		}
	}

	configs, err := s.configs.ListEnabled(ctx)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("获取支付配置失败: %w", err))
	}
	enabled := make(map[payment.Name]bool, len(configs))
	for _, cfg := range configs {
		enabled[payment.Name(cfg.Gateway)] = true
	}
	options := []model.GatewayOption{}
	for _, name := range payment.Names {
		if enabled[name] {
			options = append(options, model.GatewayOption{Gateway: string(name), Name: name.DisplayName()})
		}
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, s.cache.Key(gatewayListCacheKey), options, gatewayListTTL); err != nil {
			s.logger.Warn("写入网关列表缓存失败", "error", err)
		}
	}
	return options, nil
}
