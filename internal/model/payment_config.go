package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// 支付配置状态
const (
	PaymentConfigDisabled int8 = 0
	PaymentConfigEnabled  int8 = 1
)

// PaymentConfig 支付网关配置，每个网关最多一条
type PaymentConfig struct {
	ID        uint64            `db:"id" json:"id"`
	Gateway   string            `db:"gateway" json:"gateway"`
	Config    datatypes.JSONMap `db:"config" json:"config"`
	Status    int8              `db:"status" json:"status"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// Enabled 是否启用
func (c *PaymentConfig) Enabled() bool {
	return c.Status == PaymentConfigEnabled
}

// ValidPaymentConfigStatus 状态值是否合法
func ValidPaymentConfigStatus(status int8) bool {
	return status == PaymentConfigEnabled || status == PaymentConfigDisabled
}

// ConfigString 读取配置项并转为字符串，缺失时返回空串
func ConfigString(cfg map[string]interface{}, key string) string {
	v, ok := cfg[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON数字统一解码为float64，整数值不带小数输出
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprint(s)
	}
}

// GatewayOption 可用支付方式展示项
type GatewayOption struct {
	Gateway string `json:"gateway"`
	Name    string `json:"name"`
}
