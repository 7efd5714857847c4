package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/event"
	"shopadmin/internal/metrics"
	"shopadmin/internal/model"
	"shopadmin/internal/repository"
	"shopadmin/pkg/logger"

	"gorm.io/datatypes"
	"k8s.io/apimachinery/pkg/util/rand"
)

// 订单号冲突时的最大尝试次数
const maxOrderNoAttempts = 5

// 每批处理的超时订单数
const expireBatchSize = 100

// OrderItemInput 下单明细
type OrderItemInput struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderService 订单服务。下单与取消在同一事务内完成库存与订单的修改
type OrderService struct {
	uow     repository.UnitOfWork
	orders  repository.OrderRepository
	emitter event.Emitter
	metrics *metrics.Metrics
	logger  *logger.Logger
	orderNo func() string
	now     func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(
	uow repository.UnitOfWork,
	orders repository.OrderRepository,
	emitter event.Emitter,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *OrderService {
	if emitter == nil {
		emitter = event.NopEmitter{}
	}
	return &OrderService{
		uow:     uow,
		orders:  orders,
		emitter: emitter,
		metrics: metrics,
		logger:  logger,
		orderNo: generateOrderNo,
		now:     time.Now,
	}
}

var orderSeq uint32

// generateOrderNo 时间戳(14位) + 进程内序号(4位) + 随机数(4位)
func generateOrderNo() string {
	seq := atomic.AddUint32(&orderSeq, 1) % 10000
	return fmt.Sprintf("%s%04d%04d", time.Now().Format("20060102150405"), seq, rand.Intn(10000))
}

// CreateOrder 创建订单并扣减库存，任一步骤失败整体回滚
func (s *OrderService) CreateOrder(ctx context.Context, userID uint64, items []OrderItemInput, address datatypes.JSON) (*model.Order, error) {
	if len(items) == 0 {
		return nil, apperror.Validation(constants.ErrItemsRequired)
	}
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return nil, apperror.Validation(constants.ErrItemInvalid)
		}
	}
	if model.EmptyJSON(address) {
		return nil, apperror.Validation(constants.ErrAddressRequired)
	}

	var order *model.Order
	var err error
	for attempt := 1; attempt <= maxOrderNoAttempts; attempt++ {
		order, err = s.createOnce(ctx, userID, items, address)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		s.logger.Warn("订单号冲突，重新生成", "attempt", attempt)
	}
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			s.logger.Error("创建订单失败", "user_id", userID, "error", err)
			return nil, apperror.Internal(fmt.Errorf("创建订单失败: %w", err))
		}
		if errors.Is(err, apperror.Conflict(constants.ErrInsufficientStock)) {
			s.metrics.InsufficientStock()
		}
		return nil, err
	}

	s.metrics.OrderCreated()
	s.emitter.Emit(event.OrderCreated, order)
	s.logger.Info("订单创建成功", "order_no", order.OrderNo, "user_id", userID, "total_amount", order.TotalAmount.String())
	return order, nil
}

func (s *OrderService) createOnce(ctx context.Context, userID uint64, items []OrderItemInput, address datatypes.JSON) (*model.Order, error) {
	now := s.now()
	order := &model.Order{
		OrderNo:   s.orderNo(),
		UserID:    userID,
		Status:    model.OrderStatusPending,
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     make([]model.OrderItem, 0, len(items)),
	}

	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		for _, item := range items {
			product, err := repos.Products.GetByIDForUpdate(ctx, item.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.NotFound(constants.ErrProductNotFound)
			}
			if err != nil {
				return fmt.Errorf("获取商品 %d: %w", item.ProductID, err)
			}
			if product.Stock < item.Quantity {
				return apperror.Conflict(constants.ErrInsufficientStock)
			}
			ok, err := repos.Products.DecrementStock(ctx, product.ID, item.Quantity)
			if err != nil {
				return fmt.Errorf("扣减库存 %d: %w", product.ID, err)
			}
			if !ok {
				return apperror.Conflict(constants.ErrInsufficientStock)
			}
			order.Items = append(order.Items, model.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    item.Quantity,
				Price:       product.Price,
			})
		}
		order.TotalAmount = order.ItemsTotal()
		return repos.Orders.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ShipOrder 发货，仅已支付订单
func (s *OrderService) ShipOrder(ctx context.Context, id uint64, logistics model.Logistics) (*model.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPaid {
		return nil, apperror.Conflict(constants.ErrStatusNotCorrect)
	}
	logistics.Company = strings.TrimSpace(logistics.Company)
	logistics.Number = strings.TrimSpace(logistics.Number)
	if logistics.Company == "" || logistics.Number == "" {
		return nil, apperror.Validation(constants.ErrLogisticsMissing)
	}

	ok, err := s.orders.MarkShipped(ctx, id, logistics, s.now())
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("更新发货状态失败: %w", err))
	}
	if !ok {
		return nil, apperror.Conflict(constants.ErrStatusNotCorrect)
	}
	return s.afterTransition(ctx, id, event.OrderShipped)
}

// CompleteOrder 确认完成，仅已发货订单
func (s *OrderService) CompleteOrder(ctx context.Context, id uint64) (*model.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusShipped {
		return nil, apperror.Conflict(constants.ErrStatusNotCorrect)
	}
	ok, err := s.orders.MarkCompleted(ctx, id, s.now())
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("更新完成状态失败: %w", err))
	}
	if !ok {
		return nil, apperror.Conflict(constants.ErrStatusNotCorrect)
	}
	return s.afterTransition(ctx, id, event.OrderCompleted)
}

// CancelOrder 取消订单并归还库存。已支付订单的退款由调用方负责
func (s *OrderService) CancelOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return s.cancel(ctx, id, "")
}

// CancelOrderFrom 仅当订单仍处于 expected 状态时取消
func (s *OrderService) CancelOrderFrom(ctx context.Context, id uint64, expected model.OrderStatus) (*model.Order, error) {
	return s.cancel(ctx, id, expected)
}

func (s *OrderService) cancel(ctx context.Context, id uint64, expected model.OrderStatus) (*model.Order, error) {
	var cancelled *model.Order
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		order, err := repos.Orders.GetByIDForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound(constants.ErrOrderNotFound)
		}
		if err != nil {
			return fmt.Errorf("获取订单: %w", err)
		}
		switch {
		case order.Status == model.OrderStatusCompleted:
			return apperror.Conflict(constants.ErrAlreadyCompleted)
		case order.Status == model.OrderStatusCancelled:
			return apperror.Conflict(constants.ErrAlreadyCancelled)
		case !model.CanTransition(order.Status, model.OrderStatusCancelled):
			return apperror.Conflict(constants.ErrStatusNotCorrect)
		case expected != "" && order.Status != expected:
			return apperror.Conflict(constants.ErrStatusNotCorrect)
		}

		items, err := repos.Orders.ListItems(ctx, id)
		if err != nil {
			return fmt.Errorf("获取订单明细: %w", err)
		}
		for _, item := range items {
			err := repos.Products.IncrementStock(ctx, item.ProductID, item.Quantity)
			if errors.Is(err, repository.ErrNotFound) {
				// 商品已下架删除，无处归还
				s.logger.Warn("归还库存时商品不存在", "order_no", order.OrderNo, "product_id", item.ProductID)
				continue
			}
			if err != nil {
				return fmt.Errorf("归还库存 %d: %w", item.ProductID, err)
			}
		}

		now := s.now()
		ok, err := repos.Orders.MarkCancelled(ctx, id, order.Status, now)
		if err != nil {
			return fmt.Errorf("更新取消状态: %w", err)
		}
		if !ok {
			return apperror.Conflict(constants.ErrStatusNotCorrect)
		}
		order.Status = model.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now
		order.Items = items
		cancelled = order
		return nil
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			s.logger.Error("取消订单失败", "order_id", id, "error", err)
			return nil, apperror.Internal(err)
		}
		return nil, err
	}

	s.metrics.OrderTransition(string(model.OrderStatusCancelled))
	s.emitter.Emit(event.OrderCancelled, cancelled)
	s.logger.Info("订单已取消", "order_no", cancelled.OrderNo)
	return cancelled, nil
}

// GetOrder 获取订单详情（含明细）
func (s *OrderService) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders 分页查询订单，不含明细
func (s *OrderService) ListOrders(ctx context.Context, filter model.OrderFilter) (*model.PaginatedOrders, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.Validation(constants.ErrInvalidStatus)
	}
	filter.Normalize()
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("查询订单列表失败: %w", err))
	}
	return &model.PaginatedOrders{Total: total, Items: orders}, nil
}

// ExpirePendingOrders 取消创建时间早于 before 的待支付订单，返回取消数量
func (s *OrderService) ExpirePendingOrders(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.orders.ListPendingBefore(ctx, before, expireBatchSize)
	if err != nil {
		return 0, apperror.Internal(fmt.Errorf("查询超时订单失败: %w", err))
	}
	cancelled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		// 查询之后可能已支付，只取消仍待支付的订单
		if _, err := s.CancelOrderFrom(ctx, id, model.OrderStatusPending); err != nil {
			if apperror.KindOf(err) == apperror.KindConflict {
				continue
			}
			s.logger.Error("自动取消超时订单失败", "order_id", id, "error", err)
			continue
		}
		s.metrics.OrderExpired()
		cancelled++
	}
	return cancelled, nil
}

func (s *OrderService) getOrder(ctx context.Context, id uint64) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound(constants.ErrOrderNotFound)
	}
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("获取订单失败: %w", err))
	}
	return order, nil
}

func (s *OrderService) attachItems(ctx context.Context, order *model.Order) error {
	items, err := s.orders.ListItems(ctx, order.ID)
	if err != nil {
		return apperror.Internal(fmt.Errorf("获取订单明细失败: %w", err))
	}
	order.Items = items
	return nil
}

// afterTransition 重新读取订单并发出事件
func (s *OrderService) afterTransition(ctx context.Context, id uint64, t event.Type) (*model.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.OrderTransition(string(order.Status))
	s.emitter.Emit(t, order)
	s.logger.Info("订单状态变更", "order_no", order.OrderNo, "status", order.Status)
	return order, nil
}
