package payment

import (
	"strings"

	"shopadmin/internal/model"
)

// Field 配置项
type Field struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Secret bool   `json:"secret"`
}

// 每个网关的必填配置，顺序即报错顺序
var requiredFields = map[Name][]Field{
	Alipay: {
		{Key: "app_id", Label: "应用ID"},
		{Key: "private_key", Label: "应用私钥", Secret: true},
		{Key: "public_key", Label: "支付宝公钥"},
	},
	Wechat: {
		{Key: "app_id", Label: "公众号/应用ID"},
		{Key: "mch_id", Label: "商户号"},
		{Key: "api_key", Label: "API密钥", Secret: true},
	},
	PayPal: {
		{Key: "client_id", Label: "Client ID"},
		{Key: "client_secret", Label: "Client Secret", Secret: true},
		{Key: "webhook_id", Label: "Webhook ID"},
	},
}

// 非必填但需要脱敏的配置项
var optionalSecrets = map[Name][]string{
	Wechat: {"cert_p12"},
}

// RequiredFields 网关必填配置
func RequiredFields(name Name) []Field {
	return requiredFields[name]
}

// MissingFields 返回缺失或为空的必填项
func MissingFields(name Name, cfg map[string]interface{}) []string {
	var missing []string
	for _, f := range requiredFields[name] {
		if strings.TrimSpace(model.ConfigString(cfg, f.Key)) == "" {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

// MaskSecrets 返回脱敏后的配置副本
func MaskSecrets(name Name, cfg map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		masked[k] = v
	}
	secrets := append([]string(nil), optionalSecrets[name]...)
	for _, f := range requiredFields[name] {
		if f.Secret {
			secrets = append(secrets, f.Key)
		}
	}
	for _, key := range secrets {
		if s := model.ConfigString(cfg, key); s != "" {
			masked[key] = maskValue(s)
		}
	}
	return masked
}

func maskValue(s string) string {
	if len(s) <= 8 {
		return "******"
	}
	return s[:4] + "******" + s[len(s)-4:]
}
