package handler

import (
	"io"
	"net/http"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/middleware"
	"shopadmin/internal/payment"
	"shopadmin/internal/service"
	"shopadmin/internal/types"
	"shopadmin/pkg/logger"

	"github.com/gin-gonic/gin"
)

// 回调报文最大长度
const maxCallbackBody = 1 << 20

// PaymentHandler 支付处理器
type PaymentHandler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	logger         *logger.Logger
}

// NewPaymentHandler 创建支付处理器
func NewPaymentHandler(orderService *service.OrderService, paymentService *service.PaymentService, logger *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		orderService:   orderService,
		paymentService: paymentService,
		logger:         logger,
	}
}

// CreatePayment 为订单发起支付，返回跳转链接或二维码内容，仅限订单所有者或管理员
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		FailWith(c, http.StatusUnauthorized, constants.ErrUnauthorized)
		return
	}
	var req types.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		FailWith(c, http.StatusBadRequest, constants.ErrInvalidParams)
		return
	}
	if req.Gateway == "" {
		FailWith(c, http.StatusBadRequest, constants.ErrGatewayRequired)
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), req.OrderID)
	if err != nil {
		Fail(c, h.logger, "发起支付", err)
		return
	}
	if !identity.IsAdmin() && order.UserID != identity.ID {
		FailWith(c, http.StatusForbidden, constants.ErrInsufficientPermission)
		return
	}

	handle, err := h.paymentService.CreatePayment(c.Request.Context(), req.OrderID, req.Gateway)
	if err != nil {
		Fail(c, h.logger, "发起支付", err)
		return
	}
	Success(c, constants.SuccessCreate, handle)
}

// GetGateways 可用支付方式
func (h *PaymentHandler) GetGateways(c *gin.Context) {
	options, err := h.paymentService.GetAvailableGateways(c.Request.Context())
	if err != nil {
		Fail(c, h.logger, "获取支付方式", err)
		return
	}
	Success(c, constants.SuccessGet, options)
}

// Callback 网关异步通知。无论处理结果如何都返回200，应答内容按网关格式区分成功与失败
func (h *PaymentHandler) Callback(c *gin.Context) {
	gateway := c.Param("gateway")
	if gateway == "" {
		gateway = c.Query("gateway")
	}
	name := payment.Name(gateway)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		h.logger.Error("读取回调报文失败", "gateway", gateway, "error", err)
		h.nack(c, name, apperror.Validation(constants.ErrInvalidParams))
		return
	}

	order, err := h.paymentService.HandleCallback(c.Request.Context(), gateway, &payment.Notification{
		Body:   body,
		Header: c.Request.Header.Clone(),
		Query:  c.Request.URL.Query(),
	})
	if err != nil {
		h.nack(c, name, err)
		return
	}

	if contentType, ack := payment.Ack(name); ack != nil {
		c.Data(http.StatusOK, contentType, ack)
		return
	}
	Success(c, constants.SuccessUpdate, gin.H{
		"order_no": order.OrderNo,
		"status":   order.Status,
	})
}

func (h *PaymentHandler) nack(c *gin.Context, name payment.Name, err error) {
	msg := apperror.Message(err)
	if contentType, body := payment.Nack(name, msg); body != nil {
		c.Data(http.StatusOK, contentType, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    apperror.KindOf(err).Code(),
		"message": msg,
	})
}
