package payment

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	alipayGatewayURL  = "https://openapi.alipay.com/gateway.do"
	alipayTimeLayout  = "2006-01-02 15:04:05"
	alipayRefundOK    = "10000"
	alipayProductCode = "FAST_INSTANT_TRADE_PAY"
)

// alipayGateway RSA2签名：私钥签请求，支付宝公钥验回调
type alipayGateway struct {
	appID      string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	gatewayURL string
	returnURL  string
	notifyURL  string
	client     *http.Client
	now        func() time.Time
}

// NewAlipay 创建支付宝网关
func NewAlipay(cfg map[string]interface{}, opts Options) (Gateway, error) {
	priv, err := parsePrivateKey(model.ConfigString(cfg, "private_key"))
	if err != nil {
		return nil, apperror.Validationf("alipay private_key: %v", err)
	}
	pub, err := parsePublicKey(model.ConfigString(cfg, "public_key"))
	if err != nil {
		return nil, apperror.Validationf("alipay public_key: %v", err)
	}
	gatewayURL := model.ConfigString(cfg, "gateway_url")
	if gatewayURL == "" {
		gatewayURL = alipayGatewayURL
	}
	return &alipayGateway{
		appID:      model.ConfigString(cfg, "app_id"),
		privateKey: priv,
		publicKey:  pub,
		gatewayURL: gatewayURL,
		returnURL:  model.ConfigString(cfg, "return_url"),
		notifyURL:  opts.NotifyURL,
		client:     opts.client(),
		now:        time.Now,
	}, nil
}

func (g *alipayGateway) Name() Name {
	return Alipay
}

// commonParams 公共请求参数
func (g *alipayGateway) commonParams(method string, biz interface{}) (map[string]string, error) {
	content, err := json.Marshal(biz)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"app_id":      g.appID,
		"method":      method,
		"format":      "JSON",
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   g.now().Format(alipayTimeLayout),
		"version":     "1.0",
		"biz_content": string(content),
	}, nil
}

func (g *alipayGateway) sign(params map[string]string) (string, error) {
	digest := sha256.Sum256([]byte(canonicalString(params, "sign")))
	sig, err := rsa.SignPKCS1v15(rand.Reader, g.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (g *alipayGateway) verify(content, sign string) bool {
	sig, err := base64.StdEncoding.DecodeString(sign)
	if err != nil || len(sig) == 0 {
		return false
	}
	digest := sha256.Sum256([]byte(content))
	return rsa.VerifyPKCS1v15(g.publicKey, crypto.SHA256, digest[:], sig) == nil
}

func encodeParams(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	return values.Encode()
}

// CreatePayment 生成电脑网站支付跳转链接
func (g *alipayGateway) CreatePayment(ctx context.Context, order *model.Order) (*Handle, error) {
	params, err := g.commonParams("alipay.trade.page.pay", map[string]string{
		"out_trade_no": order.OrderNo,
		"total_amount": order.TotalAmount.StringFixed(2),
		"subject":      "订单 " + order.OrderNo,
		"product_code": alipayProductCode,
	})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	params["notify_url"] = g.notifyURL
	params["return_url"] = g.returnURL

	sign, err := g.sign(params)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("alipay sign: %w", err))
	}
	params["sign"] = sign

	return &Handle{
		Gateway: Alipay,
		OrderNo: order.OrderNo,
		Type:    HandleRedirect,
		Payload: g.gatewayURL + "?" + encodeParams(params),
	}, nil
}

// callbackParams 回调为表单格式，兼容放在查询串中的情况
func callbackParams(n *Notification) (map[string]string, error) {
	values := n.Query
	if len(n.Body) > 0 {
		parsed, err := url.ParseQuery(string(n.Body))
		if err != nil {
			return nil, err
		}
		values = parsed
	}
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params, nil
}

// VerifySignature 对除 sign、sign_type 外的字段验签
func (g *alipayGateway) VerifySignature(ctx context.Context, n *Notification) bool {
	if n == nil {
		return false
	}
	params, err := callbackParams(n)
	if err != nil {
		return false
	}
	sign := params["sign"]
	if sign == "" {
		return false
	}
	return g.verify(canonicalString(params, "sign", "sign_type"), sign)
}

// HandleCallback 解析异步通知
func (g *alipayGateway) HandleCallback(ctx context.Context, n *Notification) (*CallbackResult, error) {
	if !g.VerifySignature(ctx, n) {
		return nil, fail(constants.ErrSignatureInvalid)
	}
	params, err := callbackParams(n)
	if err != nil {
		return nil, fail(constants.ErrSignatureInvalid)
	}
	if params["app_id"] != "" && params["app_id"] != g.appID {
		return nil, fail(constants.ErrSignatureInvalid)
	}
	status := params["trade_status"]
	if status != "TRADE_SUCCESS" && status != "TRADE_FINISHED" {
		return nil, fail(constants.ErrTradeNotSuccess)
	}
	orderNo := params["out_trade_no"]
	if orderNo == "" {
		return nil, fail(constants.ErrTradeNotSuccess)
	}
	amount, err := decimal.NewFromString(params["total_amount"])
	if err != nil {
		return nil, fail(constants.ErrAmountMismatch)
	}

	paidAt := g.now()
	if t, err := time.ParseInLocation(alipayTimeLayout, params["gmt_payment"], time.Local); err == nil {
		paidAt = t
	}
	return &CallbackResult{
		OrderNo: orderNo,
		TradeNo: params["trade_no"],
		Amount:  amount,
		PaidAt:  paidAt,
	}, nil
}

type alipayRefundResponse struct {
	Code       string `json:"code"`
	Msg        string `json:"msg"`
	SubCode    string `json:"sub_code"`
	SubMsg     string `json:"sub_msg"`
	TradeNo    string `json:"trade_no"`
	OutTradeNo string `json:"out_trade_no"`
	RefundFee  string `json:"refund_fee"`
}

// Refund 调用 alipay.trade.refund 全额退款
func (g *alipayGateway) Refund(ctx context.Context, order *model.Order) (*RefundResult, error) {
	refundNo := uuid.NewString()
	biz := map[string]string{
		"out_trade_no":   order.OrderNo,
		"refund_amount":  order.TotalAmount.StringFixed(2),
		"out_request_no": refundNo,
	}
	if order.TradeNo != nil {
		biz["trade_no"] = *order.TradeNo
	}
	params, err := g.commonParams("alipay.trade.refund", biz)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	sign, err := g.sign(params)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("alipay sign: %w", err))
	}
	params["sign"] = sign

	req, err := http.NewRequest(http.MethodPost, g.gatewayURL, strings.NewReader(encodeParams(params)))
	if err != nil {
		return nil, apperror.Internal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	body, err := send(ctx, g.client, req)
	if err != nil {
		return nil, apperror.Upstream(constants.ErrRefundFailed, err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperror.Upstream(constants.ErrRefundFailed, err)
	}
	raw := envelope["alipay_trade_refund_response"]
	if sign, ok := envelope["sign"]; ok {
		var s string
		if err := json.Unmarshal(sign, &s); err != nil || !g.verify(string(raw), s) {
			return nil, apperror.Upstream(constants.ErrRefundFailed, fmt.Errorf("alipay refund response signature invalid"))
		}
	}
	var resp alipayRefundResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperror.Upstream(constants.ErrRefundFailed, err)
	}
	if resp.Code != alipayRefundOK {
		return nil, apperror.Upstream(constants.ErrRefundFailed, fmt.Errorf("alipay refund %s: %s %s", resp.Code, resp.SubCode, resp.SubMsg))
	}
	return &RefundResult{
		Gateway:  Alipay,
		OrderNo:  order.OrderNo,
		RefundNo: refundNo,
		Amount:   order.TotalAmount,
		Status:   "success",
	}, nil
}
