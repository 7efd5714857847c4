package repository

import (
	"context"
	"strings"
	"time"

	"shopadmin/internal/model"

	"github.com/jmoiron/sqlx"
)

// OrderRepository 订单存储库。状态修改均为条件更新，返回是否命中
type OrderRepository interface {
	// Create 写入订单与明细，回填ID
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	// GetByIDForUpdate 读取订单并加行锁，只在事务中有意义
	GetByIDForUpdate(ctx context.Context, id uint64) (*model.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)
	ListItems(ctx context.Context, orderID uint64) ([]model.OrderItem, error)
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int64, error)
	// ListPendingBefore 创建时间早于 before 的待支付订单ID
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]uint64, error)

	// SetPaymentGateway 记录最近一次发起支付的网关，重复发起时覆盖
	SetPaymentGateway(ctx context.Context, id uint64, gateway string) (bool, error)
	// MarkPaid 同时记录结算网关，支付前未记录网关的订单也能退款
	MarkPaid(ctx context.Context, id uint64, gateway, tradeNo string, paidAt time.Time) (bool, error)
	MarkShipped(ctx context.Context, id uint64, logistics model.Logistics, shippedAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id uint64, completedAt time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id uint64, from model.OrderStatus, cancelledAt time.Time) (bool, error)
}

// TransactionalOrderRepository 支持事务的订单存储库
type TransactionalOrderRepository interface {
	OrderRepository
	WithTx(tx *sqlx.Tx) OrderRepository
}

// orderRepository 订单存储库实现
type orderRepository struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// NewOrderRepository 创建订单存储库
func NewOrderRepository(db *sqlx.DB) TransactionalOrderRepository {
	return &orderRepository{db: db}
}

// WithTx 返回在事务中操作的存储库
func (r *orderRepository) WithTx(tx *sqlx.Tx) OrderRepository {
	return &orderRepository{db: r.db, tx: tx}
}

func (r *orderRepository) q() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const orderColumns = `id, order_no, user_id, total_amount, status, address, payment_gateway, trade_no,
	logistics_company, logistics_number, paid_at, shipped_at, completed_at, cancelled_at, created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, product_name, quantity, price`

// Create 创建订单
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	query := `
		INSERT INTO orders (order_no, user_id, total_amount, status, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.q().ExecContext(ctx, query,
		order.OrderNo,
		order.UserID,
		order.TotalAmount,
		order.Status,
		order.Address,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = uint64(id)

	itemQuery := `INSERT INTO order_items (order_id, product_id, product_name, quantity, price) VALUES (?, ?, ?, ?, ?)`
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		result, err := r.q().ExecContext(ctx, itemQuery, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price)
		if err != nil {
			return err
		}
		itemID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		item.ID = uint64(itemID)
	}
	return nil
}

// GetByID 根据ID获取订单
func (r *orderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if err := r.q().GetContext(ctx, &order, query, id); err != nil {
		return nil, translateError(err)
	}
	return &order, nil
}

// GetByIDForUpdate 加排他锁读取订单，防止并发取消重复归还库存
func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`
	if err := r.q().GetContext(ctx, &order, query, id); err != nil {
		return nil, translateError(err)
	}
	return &order, nil
}

// GetByOrderNo 根据订单号获取订单
func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_no = ?`
	if err := r.q().GetContext(ctx, &order, query, orderNo); err != nil {
		return nil, translateError(err)
	}
	return &order, nil
}

// ListItems 获取订单明细
func (r *orderRepository) ListItems(ctx context.Context, orderID uint64) ([]model.OrderItem, error) {
	items := []model.OrderItem{}
	query := `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = ? ORDER BY id`
	if err := r.q().SelectContext(ctx, &items, query, orderID); err != nil {
		return nil, err
	}
	return items, nil
}

// List 分页筛选订单
func (r *orderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int64, error) {
	var conds []string
	var args []interface{}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.OrderNo != "" {
		conds = append(conds, "order_no = ?")
		args = append(args, filter.OrderNo)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	// 先获取总记录数
	var total int64
	if err := r.q().GetContext(ctx, &total, `SELECT COUNT(*) FROM orders`+where, args...); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Order{}, 0, nil
	}

	orders := []model.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), filter.PageSize, filter.Offset())
	if err := r.q().SelectContext(ctx, &orders, query, pageArgs...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListPendingBefore 获取超时未支付的订单
func (r *orderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]uint64, error) {
	ids := []uint64{}
	query := `SELECT id FROM orders WHERE status = ? AND created_at < ? ORDER BY id LIMIT ?`
	if err := r.q().SelectContext(ctx, &ids, query, model.OrderStatusPending, before, limit); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetPaymentGateway 记录最近一次发起支付的网关，仅待支付订单。
// 结算以 MarkPaid 写入的实际支付网关为准
func (r *orderRepository) SetPaymentGateway(ctx context.Context, id uint64, gateway string) (bool, error) {
	query := `UPDATE orders SET payment_gateway = ?, updated_at = ? WHERE id = ? AND status = ?`
	return r.exec(ctx, query, gateway, time.Now(), id, model.OrderStatusPending)
}

// MarkPaid 待支付 -> 已支付
func (r *orderRepository) MarkPaid(ctx context.Context, id uint64, gateway, tradeNo string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = ?, payment_gateway = ?, trade_no = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	return r.exec(ctx, query, model.OrderStatusPaid, gateway, tradeNo, paidAt, paidAt, id, model.OrderStatusPending)
}

// MarkShipped 已支付 -> 已发货
func (r *orderRepository) MarkShipped(ctx context.Context, id uint64, logistics model.Logistics, shippedAt time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = ?, logistics_company = ?, logistics_number = ?, shipped_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	return r.exec(ctx, query, model.OrderStatusShipped, logistics.Company, logistics.Number, shippedAt, shippedAt, id, model.OrderStatusPaid)
}

// MarkCompleted 已发货 -> 已完成
func (r *orderRepository) MarkCompleted(ctx context.Context, id uint64, completedAt time.Time) (bool, error) {
	query := `UPDATE orders SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	return r.exec(ctx, query, model.OrderStatusCompleted, completedAt, completedAt, id, model.OrderStatusShipped)
}

// MarkCancelled from -> 已取消
func (r *orderRepository) MarkCancelled(ctx context.Context, id uint64, from model.OrderStatus, cancelledAt time.Time) (bool, error) {
	query := `UPDATE orders SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	return r.exec(ctx, query, model.OrderStatusCancelled, cancelledAt, cancelledAt, id, from)
}

func (r *orderRepository) exec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.q().ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
