package admin

import (
	"github.com/gin-gonic/gin"
)

// RegisterAdminRoutes 注册管理员API路由
func RegisterAdminRoutes(router *gin.RouterGroup, orderAdminHandler *OrderAdminHandler, configAdminHandler *PaymentConfigAdminHandler) {
	// 订单管理路由
	orders := router.Group("/orders")
	{
		orders.GET("", orderAdminHandler.ListOrders)
		orders.GET("/:id", orderAdminHandler.GetOrder)
		orders.POST("/:id/ship", orderAdminHandler.ShipOrder)
		orders.POST("/:id/complete", orderAdminHandler.CompleteOrder)
		orders.POST("/:id/refund", orderAdminHandler.RefundOrder)
	}

	// 支付配置管理路由
	configs := router.Group("/payment-configs")
	{
		configs.GET("", configAdminHandler.ListConfigs)
		configs.POST("", configAdminHandler.SaveConfig)
		configs.POST("/:gateway/status", configAdminHandler.UpdateStatus)
		configs.DELETE("/:gateway", configAdminHandler.DeleteConfig)
	}
}
