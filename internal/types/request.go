package types

import "gorm.io/datatypes"

// OrderItemRequest 下单明细
type OrderItemRequest struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	Items   []OrderItemRequest `json:"items"`
	Address datatypes.JSON     `json:"address"`
}

// ShipOrderRequest 发货请求
type ShipOrderRequest struct {
	LogisticsCompany string `json:"logistics_company"`
	LogisticsNumber  string `json:"logistics_number"`
}

// ListOrdersQuery 订单列表筛选参数
type ListOrdersQuery struct {
	Status   string `form:"status"`
	UserID   uint64 `form:"user_id"`
	OrderNo  string `form:"order_no"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// CreatePaymentRequest 发起支付请求
type CreatePaymentRequest struct {
	OrderID uint64 `json:"order_id" binding:"required"`
	Gateway string `json:"gateway"`
}

// SavePaymentConfigRequest 保存支付配置请求，status 缺省为启用
type SavePaymentConfigRequest struct {
	Gateway string                 `json:"gateway"`
	Config  map[string]interface{} `json:"config"`
	Status  *int8                  `json:"status"`
}

// UpdatePaymentConfigStatusRequest 启用/禁用网关请求
type UpdatePaymentConfigStatusRequest struct {
	Status *int8 `json:"status" binding:"required"`
}
