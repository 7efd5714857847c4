package apis

import (
	"shopadmin/internal/api/handler"

	"github.com/gin-gonic/gin"
)

// RegisterPublicRoutes 注册不需要认证的路由
func RegisterPublicRoutes(router *gin.RouterGroup, paymentHandler *handler.PaymentHandler) {
	payments := router.Group("/payments")
	{
		payments.GET("/gateways", paymentHandler.GetGateways)
		// 网关异步通知，网关标识可放在路径或查询参数中
		payments.POST("/callback", paymentHandler.Callback)
		payments.POST("/callback/:gateway", paymentHandler.Callback)
	}
}

// RegisterAuthRoutes 注册需要用户认证的路由
func RegisterAuthRoutes(router *gin.RouterGroup, orderHandler *handler.OrderHandler, paymentHandler *handler.PaymentHandler) {
	orders := router.Group("/orders")
	{
		orders.POST("", orderHandler.CreateOrder)
		orders.POST("/:id/cancel", orderHandler.CancelOrder)
	}

	router.POST("/payments", paymentHandler.CreatePayment)
}
