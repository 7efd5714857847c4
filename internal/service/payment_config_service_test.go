package service

import (
	"context"
	"testing"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"
	"shopadmin/internal/repository/memory"
	"shopadmin/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfigService() *PaymentConfigService {
	return NewPaymentConfigService(memory.NewStore().PaymentConfigs(), nil, logger.NewNop())
}

func wechatConfig() map[string]interface{} {
	return map[string]interface{}{
		"app_id":  "wx2421b1c4370ec43b",
		"mch_id":  "10000100",
		"api_key": "192006250b4c09247ec02edce69f6a2d",
	}
}

func TestSaveConfigMissingFields(t *testing.T) {
	svc := newConfigService()
	_, err := svc.SaveConfig(context.Background(), "alipay", map[string]interface{}{
		"app_id":      "2021000000000000",
		"private_key": "MIIEvQ...",
	}, model.PaymentConfigEnabled)
	assertAppError(t, err, apperror.KindValidation, "missing required fields: public_key")

	_, err = svc.SaveConfig(context.Background(), "paypal", map[string]interface{}{"client_id": " "}, model.PaymentConfigEnabled)
	assertAppError(t, err, apperror.KindValidation, "missing required fields: client_id, client_secret, webhook_id")
}

func TestSaveConfigRejectsInvalidInput(t *testing.T) {
	svc := newConfigService()
	ctx := context.Background()

	_, err := svc.SaveConfig(ctx, "", wechatConfig(), model.PaymentConfigEnabled)
	assertAppError(t, err, apperror.KindValidation, constants.ErrGatewayRequired)
	_, err = svc.SaveConfig(ctx, "unionpay", wechatConfig(), model.PaymentConfigEnabled)
	assertAppError(t, err, apperror.KindValidation, constants.ErrUnsupportedGateway)
	_, err = svc.SaveConfig(ctx, "wechat", wechatConfig(), 3)
	assertAppError(t, err, apperror.KindValidation, constants.ErrInvalidStatus)

	_, err = svc.SaveConfig(ctx, "alipay", map[string]interface{}{
		"app_id":      "2021000000000000",
		"private_key": "not a key",
		"public_key":  "not a key either",
	}, model.PaymentConfigEnabled)
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = svc.GetConfig(ctx, "alipay")
	assertAppError(t, err, apperror.KindNotFound, constants.ErrConfigNotFound)
}

func TestSaveConfigMasksSecrets(t *testing.T) {
	svc := newConfigService()
	ctx := context.Background()

	saved, err := svc.SaveConfig(ctx, "wechat", wechatConfig(), model.PaymentConfigEnabled)
	require.NoError(t, err)
	assert.Equal(t, "1920******6a2d", saved.Config["api_key"])
	assert.Equal(t, "10000100", saved.Config["mch_id"])
	assert.False(t, saved.CreatedAt.IsZero())
	assert.False(t, saved.UpdatedAt.IsZero())

	cfg := wechatConfig()
	cfg["api_key"] = "fedcba9876543210fedcba9876543210"
	_, err = svc.SaveConfig(ctx, "wechat", cfg, model.PaymentConfigDisabled)
	require.NoError(t, err)

	list, err := svc.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
	assert.Equal(t, "fedc******3210", list[0].Config["api_key"])
	assert.False(t, list[0].Enabled())
}

func TestUpdateStatusAndDelete(t *testing.T) {
	svc := newConfigService()
	ctx := context.Background()

	assertAppError(t, svc.UpdateStatus(ctx, "wechat", model.PaymentConfigEnabled), apperror.KindNotFound, constants.ErrConfigNotFound)
	assertAppError(t, svc.DeleteConfig(ctx, "wechat"), apperror.KindNotFound, constants.ErrConfigNotFound)

	_, err := svc.SaveConfig(ctx, "wechat", wechatConfig(), model.PaymentConfigDisabled)
	require.NoError(t, err)
	assertAppError(t, svc.UpdateStatus(ctx, "wechat", -1), apperror.KindValidation, constants.ErrInvalidStatus)
	require.NoError(t, svc.UpdateStatus(ctx, "wechat", model.PaymentConfigEnabled))

	cfg, err := svc.GetConfig(ctx, "wechat")
	require.NoError(t, err)
	assert.True(t, cfg.Enabled())

	require.NoError(t, svc.DeleteConfig(ctx, "wechat"))
	_, err = svc.GetConfig(ctx, "wechat")
	assertAppError(t, err, apperror.KindNotFound, constants.ErrConfigNotFound)
}
