package admin

import (
	"net/http"

	"shopadmin/internal/api/handler"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"
	"shopadmin/internal/service"
	"shopadmin/internal/types"
	"shopadmin/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OrderAdminHandler 管理员订单处理器
type OrderAdminHandler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	logger         *logger.Logger
}

// NewOrderAdminHandler 创建管理员订单处理器
func NewOrderAdminHandler(orderService *service.OrderService, paymentService *service.PaymentService, logger *logger.Logger) *OrderAdminHandler {
	return &OrderAdminHandler{
		orderService:   orderService,
		paymentService: paymentService,
		logger:         logger,
	}
}

// ListOrders 分页查询订单
func (h *OrderAdminHandler) ListOrders(c *gin.Context) {
	var query types.ListOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		handler.FailWith(c, http.StatusBadRequest, constants.ErrInvalidParams)
		return
	}

	result, err := h.orderService.ListOrders(c.Request.Context(), model.OrderFilter{
		Status:   model.OrderStatus(query.Status),
		UserID:   query.UserID,
		OrderNo:  query.OrderNo,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		handler.Fail(c, h.logger, "查询订单列表", err)
		return
	}
	handler.Success(c, constants.SuccessGet, result)
}

// GetOrder 订单详情
func (h *OrderAdminHandler) GetOrder(c *gin.Context) {
	id, ok := handler.ParseID(c)
	if !ok {
		return
	}
	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, h.logger, "获取订单", err)
		return
	}
	handler.Success(c, constants.SuccessGet, order)
}

// ShipOrder 发货
func (h *OrderAdminHandler) ShipOrder(c *gin.Context) {
	id, ok := handler.ParseID(c)
	if !ok {
		return
	}
	var req types.ShipOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.FailWith(c, http.StatusBadRequest, constants.ErrInvalidParams)
		return
	}

	order, err := h.orderService.ShipOrder(c.Request.Context(), id, model.Logistics{
		Company: req.LogisticsCompany,
		Number:  req.LogisticsNumber,
	})
	if err != nil {
		handler.Fail(c, h.logger, "订单发货", err)
		return
	}
	handler.Success(c, constants.SuccessUpdate, order)
}

// CompleteOrder 确认完成
func (h *OrderAdminHandler) CompleteOrder(c *gin.Context) {
	id, ok := handler.ParseID(c)
	if !ok {
		return
	}
	order, err := h.orderService.CompleteOrder(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, h.logger, "完成订单", err)
		return
	}
	handler.Success(c, constants.SuccessUpdate, order)
}

// RefundOrder 全额退款，订单状态不变
func (h *OrderAdminHandler) RefundOrder(c *gin.Context) {
	id, ok := handler.ParseID(c)
	if !ok {
		return
	}
	result, err := h.paymentService.RefundOrder(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, h.logger, "订单退款", err)
		return
	}
	handler.Success(c, constants.SuccessUpdate, result)
}
