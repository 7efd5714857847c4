package handler

import (
	"net/http"
	"strconv"

	"shopadmin/internal/constants"
	"shopadmin/internal/middleware"
	"shopadmin/internal/service"
	"shopadmin/internal/types"
	"shopadmin/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OrderHandler 用户侧订单处理器
type OrderHandler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	logger         *logger.Logger
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(orderService *service.OrderService, paymentService *service.PaymentService, logger *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService:   orderService,
		paymentService: paymentService,
		logger:         logger,
	}
}

// ParseID 解析路径中的订单ID
func ParseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		FailWith(c, http.StatusBadRequest, constants.ErrInvalidOrderID)
		return 0, false
	}
	return id, true
}

// CreateOrder 创建订单
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		FailWith(c, http.StatusUnauthorized, constants.ErrUnauthorized)
		return
	}

	var req types.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		FailWith(c, http.StatusBadRequest, constants.ErrInvalidParams)
		return
	}
	items := make([]service.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), identity.ID, items, req.Address)
	if err != nil {
		Fail(c, h.logger, "创建订单", err)
		return
	}
	Success(c, constants.SuccessCreate, order)
}

// CancelOrder 取消订单，订单所有者或管理员可操作，已支付订单先退款
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		FailWith(c, http.StatusUnauthorized, constants.ErrUnauthorized)
		return
	}
	id, ok := ParseID(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		Fail(c, h.logger, "取消订单", err)
		return
	}
	if !identity.IsAdmin() && order.UserID != identity.ID {
		FailWith(c, http.StatusForbidden, constants.ErrInsufficientPermission)
		return
	}

	cancelled, refund, err := h.paymentService.CancelOrder(c.Request.Context(), id)
	if err != nil {
		Fail(c, h.logger, "取消订单", err)
		return
	}
	h.logger.Info("用户取消订单", "order_no", cancelled.OrderNo, "operator", identity.ID, "refunded", refund != nil)
	Success(c, constants.SuccessUpdate, gin.H{
		"order":  cancelled,
		"refund": refund,
	})
}
