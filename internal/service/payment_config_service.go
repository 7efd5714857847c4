package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"
	"shopadmin/internal/payment"
	"shopadmin/internal/repository"
	"shopadmin/pkg/cache"
	"shopadmin/pkg/logger"
)

const gatewayListCacheKey = "payment:gateways"

// PaymentConfigService 支付网关配置管理
type PaymentConfigService struct {
	configs repository.PaymentConfigRepository
	cache   cache.Cache
	factory payment.Factory
	logger  *logger.Logger
}

// NewPaymentConfigService 创建支付配置服务
func NewPaymentConfigService(configs repository.PaymentConfigRepository, cache cache.Cache, logger *logger.Logger) *PaymentConfigService {
	return &PaymentConfigService{
		configs: configs,
		cache:   cache,
		factory: payment.New,
		logger:  logger,
	}
}

func parseGateway(gateway string) (payment.Name, error) {
	if gateway == "" {
		return "", apperror.Validation(constants.ErrGatewayRequired)
	}
	name, ok := payment.ParseName(gateway)
	if !ok {
		return "", apperror.Validation(constants.ErrUnsupportedGateway)
	}
	return name, nil
}

// SaveConfig 新增或覆盖网关配置，必填项缺失或密钥无法解析时拒绝保存
func (s *PaymentConfigService) SaveConfig(ctx context.Context, gateway string, cfg map[string]interface{}, status int8) (*model.PaymentConfig, error) {
	name, err := parseGateway(gateway)
	if err != nil {
		return nil, err
	}
	if !model.ValidPaymentConfigStatus(status) {
		return nil, apperror.Validation(constants.ErrInvalidStatus)
	}
	if missing := payment.MissingFields(name, cfg); len(missing) > 0 {
		return nil, apperror.Validationf("%s: %s", constants.ErrMissingFields, strings.Join(missing, ", "))
	}
	if _, err := s.factory(name, cfg, payment.Options{}); err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			return nil, apperror.Validation(err.Error())
		}
		return nil, apperror.Validation(apperror.Message(err))
	}

	now := time.Now()
	record := &model.PaymentConfig{Gateway: string(name), Config: cfg, Status: status, CreatedAt: now, UpdatedAt: now}
	if err := s.configs.Upsert(ctx, record); err != nil {
		return nil, apperror.Internal(fmt.Errorf("保存支付配置失败: %w", err))
	}
	s.invalidate(ctx)
	s.logger.Info("支付配置已保存", "gateway", name, "status", status)
	return s.GetConfig(ctx, string(name))
}

// UpdateStatus 启用或禁用网关
func (s *PaymentConfigService) UpdateStatus(ctx context.Context, gateway string, status int8) error {
	name, err := parseGateway(gateway)
	if err != nil {
		return err
	}
	if !model.ValidPaymentConfigStatus(status) {
		return apperror.Validation(constants.ErrInvalidStatus)
	}
	err = s.configs.UpdateStatus(ctx, string(name), status)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound(constants.ErrConfigNotFound)
	}
	if err != nil {
		return apperror.Internal(fmt.Errorf("更新支付配置状态失败: %w", err))
	}
	s.invalidate(ctx)
	s.logger.Info("支付配置状态已更新", "gateway", name, "status", status)
	return nil
}

// DeleteConfig 删除网关配置
func (s *PaymentConfigService) DeleteConfig(ctx context.Context, gateway string) error {
	name, err := parseGateway(gateway)
	if err != nil {
		return err
	}
	err = s.configs.Delete(ctx, string(name))
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound(constants.ErrConfigNotFound)
	}
	if err != nil {
		return apperror.Internal(fmt.Errorf("删除支付配置失败: %w", err))
	}
	s.invalidate(ctx)
	s.logger.Info("支付配置已删除", "gateway", name)
	return nil
}

// GetConfig 获取配置，密钥字段已脱敏
func (s *PaymentConfigService) GetConfig(ctx context.Context, gateway string) (*model.PaymentConfig, error) {
	name, err := parseGateway(gateway)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetByGateway(ctx, string(name))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound(constants.ErrConfigNotFound)
	}
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("获取支付配置失败: %w", err))
	}
	cfg.Config = payment.MaskSecrets(name, cfg.Config)
	return cfg, nil
}

// ListConfigs 全部网关配置，密钥字段已脱敏
func (s *PaymentConfigService) ListConfigs(ctx context.Context) ([]model.PaymentConfig, error) {
	configs, err := s.configs.List(ctx)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("获取支付配置失败: %w", err))
	}
	for i := range configs {
		configs[i].Config = payment.MaskSecrets(payment.Name(configs[i].Gateway), configs[i].Config)
	}
	return configs, nil
}

func (s *PaymentConfigService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cache.Key(gatewayListCacheKey)); err != nil {
		s.logger.Warn("清除网关列表缓存失败", "error", err)
	}
}
