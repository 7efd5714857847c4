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

// PaymentConfigAdminHandler 支付配置管理处理器
type PaymentConfigAdminHandler struct {
	configService *service.PaymentConfigService
	logger        *logger.Logger
}

// NewPaymentConfigAdminHandler 创建支付配置管理处理器
func NewPaymentConfigAdminHandler(configService *service.PaymentConfigService, logger *logger.Logger) *PaymentConfigAdminHandler {
	return &PaymentConfigAdminHandler{
		configService: configService,
		logger:        logger,
	}
}

// ListConfigs 全部网关配置（密钥已脱敏）
func (h *PaymentConfigAdminHandler) ListConfigs(c *gin.Context) {
	configs, err := h.configService.ListConfigs(c.Request.Context())
	if err != nil {
		handler.Fail(c, h.logger, "获取支付配置", err)
		return
	}
	handler.Success(c, constants.SuccessGet, configs)
}

// SaveConfig 新增或覆盖网关配置
func (h *PaymentConfigAdminHandler) SaveConfig(c *gin.Context) {
	var req types.SavePaymentConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.FailWith(c, http.StatusBadRequest, constants.ErrInvalidParams)
		return
	}
	status := model.PaymentConfigEnabled
	if req.Status != nil {
		status = *req.Status
	}

	cfg, err := h.configService.SaveConfig(c.Request.Context(), req.Gateway, req.Config, status)
	if err != nil {
		handler.Fail(c, h.logger, "保存支付配置", err)
		return
	}
	handler.Success(c, constants.SuccessUpdate, cfg)
}

// UpdateStatus 启用或禁用网关
func (h *PaymentConfigAdminHandler) UpdateStatus(c *gin.Context) {
	var req types.UpdatePaymentConfigStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.FailWith(c, http.StatusBadRequest, constants.ErrInvalidParams)
		return
	}
	if err := h.configService.UpdateStatus(c.Request.Context(), c.Param("gateway"), *req.Status); err != nil {
		handler.Fail(c, h.logger, "更新支付配置状态", err)
		return
	}
	handler.Success(c, constants.SuccessUpdate, nil)
}

// DeleteConfig 删除网关配置
func (h *PaymentConfigAdminHandler) DeleteConfig(c *gin.Context) {
	if err := h.configService.DeleteConfig(c.Request.Context(), c.Param("gateway")); err != nil {
		handler.Fail(c, h.logger, "删除支付配置", err)
		return
	}
	handler.Success(c, constants.SuccessDelete, nil)
}
