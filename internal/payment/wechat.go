package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/pkcs12"
	"k8s.io/apimachinery/pkg/util/rand"
)

const (
	wechatAPIBase    = "https://api.mch.weixin.qq.com"
	wechatSuccess    = "SUCCESS"
	wechatSignMD5    = "MD5"
	wechatSignHMAC   = "HMAC-SHA256"
	wechatTimeLayout = "20060102150405"
)

// wechatGateway 共享密钥签名：排序串后拼接 &key=api_key 再做 MD5/HMAC-SHA256
type wechatGateway struct {
	appID    string
	mchID    string
	apiKey   string
	signType string
	apiBase  string
	// certP12 base64编码的商户证书，退款接口需要双向TLS
	certP12   string
	notifyURL string
	client    *http.Client
	now       func() time.Time
}

// NewWechat 创建微信支付网关
func NewWechat(cfg map[string]interface{}, opts Options) (Gateway, error) {
	signType := strings.ToUpper(model.ConfigString(cfg, "sign_type"))
	if signType == "" {
		signType = wechatSignMD5
	}
	if signType != wechatSignMD5 && signType != wechatSignHMAC {
		return nil, apperror.Validationf("wechat sign_type %q not supported", signType)
	}
	apiBase := model.ConfigString(cfg, "api_base")
	if apiBase == "" {
		apiBase = wechatAPIBase
	}
	return &wechatGateway{
		appID:     model.ConfigString(cfg, "app_id"),
		mchID:     model.ConfigString(cfg, "mch_id"),
		apiKey:    model.ConfigString(cfg, "api_key"),
		signType:  signType,
		apiBase:   strings.TrimRight(apiBase, "/"),
		certP12:   model.ConfigString(cfg, "cert_p12"),
		notifyURL: opts.NotifyURL,
		client:    opts.client(),
		now:       time.Now,
	}, nil
}

func (g *wechatGateway) Name() Name {
	return Wechat
}

// sign 计算签名，signType 为空时使用网关配置
func (g *wechatGateway) sign(params map[string]string, signType string) string {
	if signType == "" {
		signType = g.signType
	}
	content := canonicalString(params, "sign") + "&key=" + g.apiKey
	var h hash.Hash
	if signType == wechatSignHMAC {
		h = hmac.New(sha256.New, []byte(g.apiKey))
	} else {
		h = md5.New()
	}
	h.Write([]byte(content))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// verify 比较报文中的 sign 与重新计算的签名
func (g *wechatGateway) verify(params map[string]string) bool {
	sign := params["sign"]
	if sign == "" {
		return false
	}
	signType := strings.ToUpper(params["sign_type"])
	if signType != "" && signType != wechatSignMD5 && signType != wechatSignHMAC {
		return false
	}
	expected := g.sign(params, signType)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToUpper(sign))) == 1
}

func (g *wechatGateway) baseParams() map[string]string {
	params := map[string]string{
		"appid":     g.appID,
		"mch_id":    g.mchID,
		"nonce_str": rand.String(32),
	}
	if g.signType == wechatSignHMAC {
		params["sign_type"] = wechatSignHMAC
	}
	return params
}

// post 签名后以XML提交，并校验响应的通信状态与签名
func (g *wechatGateway) post(ctx context.Context, client *http.Client, path string, params map[string]string) (map[string]string, error) {
	params["sign"] = g.sign(params, "")
	payload, err := encodeXMLMap(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, g.apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	body, err := send(ctx, client, req)
	if err != nil {
		return nil, err
	}
	resp, err := decodeXMLMap(body)
	if err != nil {
		return nil, err
	}
	if resp["return_code"] != wechatSuccess {
		return nil, fmt.Errorf("wechat return_code %s: %s", resp["return_code"], resp["return_msg"])
	}
	if !g.verify(resp) {
		return nil, errors.New("wechat response signature invalid")
	}
	if resp["result_code"] != wechatSuccess {
		return nil, fmt.Errorf("wechat result_code %s: %s %s", resp["result_code"], resp["err_code"], resp["err_code_des"])
	}
	return resp, nil
}

// CreatePayment 统一下单(NATIVE)，返回二维码内容
func (g *wechatGateway) CreatePayment(ctx context.Context, order *model.Order) (*Handle, error) {
	params := g.baseParams()
	params["body"] = "订单 " + order.OrderNo
	params["out_trade_no"] = order.OrderNo
	params["total_fee"] = strconv.FormatInt(toCents(order.TotalAmount), 10)
	params["spbill_create_ip"] = "127.0.0.1"
	params["notify_url"] = g.notifyURL
	params["trade_type"] = "NATIVE"
	params["product_id"] = order.OrderNo

	resp, err := g.post(ctx, g.client, "/pay/unifiedorder", params)
	if err != nil {
		return nil, apperror.Upstream(constants.ErrPaymentAttemptFailed, err)
	}
	if resp["code_url"] == "" {
		return nil, apperror.Upstream(constants.ErrPaymentAttemptFailed, errors.New("wechat code_url missing"))
	}
	return &Handle{
		Gateway:   Wechat,
		OrderNo:   order.OrderNo,
		Type:      HandleQRCode,
		Payload:   resp["code_url"],
		Reference: resp["prepay_id"],
	}, nil
}

// VerifySignature 校验XML通知签名
func (g *wechatGateway) VerifySignature(ctx context.Context, n *Notification) bool {
	if n == nil || len(n.Body) == 0 {
		return false
	}
	params, err := decodeXMLMap(n.Body)
	if err != nil {
		return false
	}
	return g.verify(params)
}

// HandleCallback 解析支付结果通知，金额单位为分
func (g *wechatGateway) HandleCallback(ctx context.Context, n *Notification) (*CallbackResult, error) {
	if !g.VerifySignature(ctx, n) {
		return nil, fail(constants.ErrSignatureInvalid)
	}
	params, err := decodeXMLMap(n.Body)
	if err != nil {
		return nil, fail(constants.ErrSignatureInvalid)
	}
	if params["mch_id"] != g.mchID {
		return nil, fail(constants.ErrSignatureInvalid)
	}
	if params["return_code"] != wechatSuccess || params["result_code"] != wechatSuccess {
		return nil, fail(constants.ErrTradeNotSuccess)
	}
	orderNo := params["out_trade_no"]
	if orderNo == "" {
		return nil, fail(constants.ErrTradeNotSuccess)
	}
	fee, err := strconv.ParseInt(params["total_fee"], 10, 64)
	if err != nil {
		return nil, fail(constants.ErrAmountMismatch)
	}

	paidAt := g.now()
	if t, err := time.ParseInLocation(wechatTimeLayout, params["time_end"], time.Local); err == nil {
		paidAt = t
	}
	return &CallbackResult{
		OrderNo: orderNo,
		TradeNo: params["transaction_id"],
		Amount:  fromCents(fee),
		PaidAt:  paidAt,
	}, nil
}

// Refund 申请退款，配置了商户证书时使用双向TLS
func (g *wechatGateway) Refund(ctx context.Context, order *model.Order) (*RefundResult, error) {
	client, err := g.refundClient()
	if err != nil {
		return nil, apperror.Validationf("wechat cert_p12: %v", err)
	}

	fee := strconv.FormatInt(toCents(order.TotalAmount), 10)
	refundNo := strings.ReplaceAll(uuid.NewString(), "-", "")
	params := g.baseParams()
	params["out_trade_no"] = order.OrderNo
	params["out_refund_no"] = refundNo
	params["total_fee"] = fee
	params["refund_fee"] = fee
	if order.TradeNo != nil {
		params["transaction_id"] = *order.TradeNo
	}

	resp, err := g.post(ctx, client, "/secapi/pay/refund", params)
	if err != nil {
		return nil, apperror.Upstream(constants.ErrRefundFailed, err)
	}
	if resp["refund_id"] != "" {
		refundNo = resp["refund_id"]
	}
	return &RefundResult{
		Gateway:  Wechat,
		OrderNo:  order.OrderNo,
		RefundNo: refundNo,
		Amount:   order.TotalAmount,
		Status:   "processing",
	}, nil
}

// refundClient 加载PKCS#12商户证书，密码为商户号
func (g *wechatGateway) refundClient() (*http.Client, error) {
	if g.certP12 == "" {
		return g.client, nil
	}
	data, err := base64.StdEncoding.DecodeString(g.certP12)
	if err != nil {
		return nil, err
	}
	key, cert, err := pkcs12.Decode(data, g.mchID)
	if err != nil {
		return nil, err
	}

	var transport *http.Transport
	if base, ok := g.client.Transport.(*http.Transport); ok && base != nil {
		transport = base.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.Certificates = []tls.Certificate{{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}}
	return &http.Client{Transport: transport, Timeout: g.client.Timeout}, nil
}

// encodeXMLMap 生成 <xml><k>v</k></xml>，字段按键名排序
func encodeXMLMap(params map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	root := xml.StartElement{Name: xml.Name{Local: "xml"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := enc.EncodeElement(params[k], xml.StartElement{Name: xml.Name{Local: k}}); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeXMLMap 解析一层的 <xml> 报文，CDATA 按文本处理
func decodeXMLMap(data []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	params := make(map[string]string)
	depth := 0
	var key string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				key = t.Name.Local
				text.Reset()
			} else if depth > 2 {
				return nil, errors.New("nested xml element")
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				params[key] = text.String()
			}
			depth--
		}
	}
	if len(params) == 0 {
		return nil, errors.New("empty xml payload")
	}
	return params, nil
}
