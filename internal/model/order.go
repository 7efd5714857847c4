package model

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// 只允许向前流转，pending/paid 可取消，completed/cancelled 为终态
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:      {OrderStatusShipped: true, OrderStatusCancelled: true},
	OrderStatusShipped:   {OrderStatusCompleted: true},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// CanTransition 判断状态能否从 from 流转到 to
func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// Valid 是否为已知状态
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Settled 是否已完成支付（已支付、已发货、已完成）
func (s OrderStatus) Settled() bool {
	return s == OrderStatusPaid || s == OrderStatusShipped || s == OrderStatusCompleted
}

// Terminal 是否终态
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Order 订单模型
type Order struct {
	ID               uint64          `db:"id" json:"id"`
	OrderNo          string          `db:"order_no" json:"order_no"`
	UserID           uint64          `db:"user_id" json:"user_id"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status           OrderStatus     `db:"status" json:"status"`
	Address          datatypes.JSON  `db:"address" json:"address"`
	PaymentGateway   *string         `db:"payment_gateway" json:"payment_gateway"`
	TradeNo          *string         `db:"trade_no" json:"trade_no,omitempty"`
	LogisticsCompany string          `db:"logistics_company" json:"logistics_company"`
	LogisticsNumber  string          `db:"logistics_number" json:"logistics_number"`
	PaidAt           *time.Time      `db:"paid_at" json:"paid_at"`
	ShippedAt        *time.Time      `db:"shipped_at" json:"shipped_at"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completed_at"`
	CancelledAt      *time.Time      `db:"cancelled_at" json:"cancelled_at"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// Gateway 已记录的支付网关，未发起支付时为空
func (o *Order) Gateway() string {
	if o.PaymentGateway == nil {
		return ""
	}
	return *o.PaymentGateway
}

// ItemsTotal 按明细快照重新计算金额
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OrderItem 订单明细，下单时的商品名称与单价快照，创建后不可修改
type OrderItem struct {
	ID          uint64          `db:"id" json:"id"`
	OrderID     uint64          `db:"order_id" json:"order_id"`
	ProductID   uint64          `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
}

// Subtotal 明细小计
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Logistics 物流信息
type Logistics struct {
	Company string `json:"logistics_company"`
	Number  string `json:"logistics_number"`
}

// OrderFilter 订单列表筛选条件
type OrderFilter struct {
	Status   OrderStatus
	UserID   uint64
	OrderNo  string
	Page     int
	PageSize int
}

// Normalize 修正分页参数
func (f *OrderFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// Offset 分页偏移量
func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// PaginatedOrders 分页订单结果
type PaginatedOrders struct {
	Total int64   `json:"total"`
	Items []Order `json:"items"`
}

// EmptyJSON 判断地址等JSON字段是否为空
func EmptyJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}
