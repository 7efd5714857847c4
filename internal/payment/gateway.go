// Package payment 支付网关适配层。三种网关签名方式差异很大，只共享接口，不共享实现
package payment

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"

	"github.com/shopspring/decimal"
)

// Name 网关标识
type Name string

const (
	Alipay Name = "alipay"
	Wechat Name = "wechat"
	PayPal Name = "paypal"
)

// Names 支持的网关，顺序即展示顺序
var Names = []Name{Alipay, Wechat, PayPal}

var displayNames = map[Name]string{
	Alipay: "支付宝",
	Wechat: "微信支付",
	PayPal: "PayPal",
}

// ParseName 校验网关标识
func ParseName(s string) (Name, bool) {
	n := Name(s)
	_, ok := displayNames[n]
	return n, ok
}

// DisplayName 网关展示名称
func (n Name) DisplayName() string {
	if name, ok := displayNames[n]; ok {
		return name
	}
	return string(n)
}

// HandleType 支付凭据类型
type HandleType string

const (
	HandleRedirect HandleType = "redirect" // 跳转链接
	HandleQRCode   HandleType = "qrcode"   // 二维码内容
)

// Handle 发起支付后交给客户端的凭据
type Handle struct {
	Gateway Name       `json:"gateway"`
	OrderNo string     `json:"order_no"`
	Type    HandleType `json:"type"`
	Payload string     `json:"payload"`
	// Reference 网关侧预支付单号，部分网关返回
	Reference string `json:"reference,omitempty"`
}

// Notification 网关回调的原始请求
type Notification struct {
	Body   []byte
	Header http.Header
	Query  url.Values
}

// CallbackResult 验签通过后从回调中解析出的结算信息
type CallbackResult struct {
	OrderNo string
	TradeNo string
	Amount  decimal.Decimal
	PaidAt  time.Time
}

// RefundResult 退款结果
type RefundResult struct {
	Gateway  Name            `json:"gateway"`
	OrderNo  string          `json:"order_no"`
	RefundNo string          `json:"refund_no"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status"`
}

// Gateway 支付网关
type Gateway interface {
	Name() Name
	// CreatePayment 根据订单号与金额生成支付凭据，不修改订单
	CreatePayment(ctx context.Context, order *model.Order) (*Handle, error)
	// HandleCallback 先验签，再解析结算信息；任何异常都返回 Trust 错误
	HandleCallback(ctx context.Context, n *Notification) (*CallbackResult, error)
	// VerifySignature 验签，出错一律返回 false
	VerifySignature(ctx context.Context, n *Notification) bool
	// Refund 全额退款
	Refund(ctx context.Context, order *model.Order) (*RefundResult, error)
}

// Options 构造网关时的运行时依赖
type Options struct {
	HTTPClient *http.Client
	// NotifyURL 该网关的异步通知地址
	NotifyURL string
	// Tokens PayPal access token 缓存，为空时使用进程内缓存
	Tokens TokenStore
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

// Factory 根据配置构造网关
type Factory func(name Name, cfg map[string]interface{}, opts Options) (Gateway, error)

// New 默认网关工厂
func New(name Name, cfg map[string]interface{}, opts Options) (Gateway, error) {
	switch name {
	case Alipay:
		return NewAlipay(cfg, opts)
	case Wechat:
		return NewWechat(cfg, opts)
	case PayPal:
		return NewPayPal(cfg, opts)
	default:
		return nil, apperror.Trust(constants.ErrUnsupportedGateway)
	}
}

// Ack 回调处理成功后应答网关的内容
func Ack(name Name) (contentType string, body []byte) {
	switch name {
	case Alipay:
		return "text/plain; charset=utf-8", []byte("success")
	case Wechat:
		return "application/xml; charset=utf-8", []byte(`<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>`)
	default:
		return "", nil
	}
}

// Nack 回调处理失败时应答网关的内容，nil 表示使用默认JSON
func Nack(name Name, msg string) (contentType string, body []byte) {
	switch name {
	case Alipay:
		return "text/plain; charset=utf-8", []byte("fail")
	case Wechat:
		body, err := encodeXMLMap(map[string]string{"return_code": "FAIL", "return_msg": msg})
		if err != nil {
			body = []byte(`<xml><return_code>FAIL</return_code></xml>`)
		}
		return "application/xml; charset=utf-8", body
	default:
		return "", nil
	}
}

// fail 统一把回调阶段的异常转为 Trust 错误
func fail(msg string) error {
	return apperror.Trust(msg)
}
