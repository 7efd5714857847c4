package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"

	paypalCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	paypalOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	// token 在过期前提前刷新
	paypalTokenLeeway = time.Minute
)

// PayPal webhook 验签所需的请求头及对应的请求字段
var paypalTransmissionHeaders = map[string]string{
	"PAYPAL-AUTH-ALGO":         "auth_algo",
	"PAYPAL-CERT-URL":          "cert_url",
	"PAYPAL-TRANSMISSION-ID":   "transmission_id",
	"PAYPAL-TRANSMISSION-SIG":  "transmission_sig",
	"PAYPAL-TRANSMISSION-TIME": "transmission_time",
}

// TokenStore access token 缓存
type TokenStore interface {
	// GetToken 未命中时返回空串
	GetToken(ctx context.Context, key string) (string, error)
	SetToken(ctx context.Context, key, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, key string) error
}

// memoryTokens 进程内 token 缓存
type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
}

type memoryToken struct {
	value     string
	expiresAt time.Time
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: make(map[string]memoryToken)}
}

func (m *memoryTokens) GetToken(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[key]
	if !ok || time.Now().After(t.expiresAt) {
		return "", nil
	}
	return t.value, nil
}

func (m *memoryTokens) SetToken(ctx context.Context, key, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = memoryToken{value: token, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *memoryTokens) DeleteToken(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}

// paypalGateway Bearer token 握手，webhook 由 PayPal 接口验签
type paypalGateway struct {
	clientID     string
	clientSecret string
	webhookID    string
	currency     string
	apiBase      string
	returnURL    string
	cancelURL    string
	client       *http.Client
	tokens       TokenStore
}

// NewPayPal 创建PayPal网关，mode=live 使用生产环境
func NewPayPal(cfg map[string]interface{}, opts Options) (Gateway, error) {
	apiBase := model.ConfigString(cfg, "api_base")
	if apiBase == "" {
		apiBase = paypalSandboxBase
		if model.ConfigString(cfg, "mode") == "live" {
			apiBase = paypalLiveBase
		}
	}
	currency := strings.ToUpper(model.ConfigString(cfg, "currency"))
	if currency == "" {
		currency = "USD"
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = newMemoryTokens()
	}
	return &paypalGateway{
		clientID:     model.ConfigString(cfg, "client_id"),
		clientSecret: model.ConfigString(cfg, "client_secret"),
		webhookID:    model.ConfigString(cfg, "webhook_id"),
		currency:     currency,
		apiBase:      strings.TrimRight(apiBase, "/"),
		returnURL:    model.ConfigString(cfg, "return_url"),
		cancelURL:    model.ConfigString(cfg, "cancel_url"),
		client:       opts.client(),
		tokens:       tokens,
	}, nil
}

func (g *paypalGateway) Name() Name {
	return PayPal
}

func (g *paypalGateway) tokenKey() string {
	return "paypal:token:" + g.clientID
}

// accessToken client credentials 换取 token，优先使用缓存
func (g *paypalGateway) accessToken(ctx context.Context) (string, error) {
	if token, err := g.tokens.GetToken(ctx, g.tokenKey()); err == nil && token != "" {
		return token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequest(http.MethodPost, g.apiBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := send(ctx, g.client, req)
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("paypal token: empty access_token")
	}
	if ttl := time.Duration(resp.ExpiresIn)*time.Second - paypalTokenLeeway; ttl > 0 {
		_ = g.tokens.SetToken(ctx, g.tokenKey(), resp.AccessToken, ttl)
	}
	return resp.AccessToken, nil
}

// call 携带 Bearer token 发送JSON请求，token 被拒绝时清除缓存并重试一次
func (g *paypalGateway) call(ctx context.Context, path, requestID string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := g.post(ctx, path, requestID, data)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized {
		if derr := g.tokens.DeleteToken(ctx, g.tokenKey()); derr != nil {
			return fmt.Errorf("paypal token: %w", derr)
		}
		body, err = g.post(ctx, path, requestID, data)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (g *paypalGateway) post(ctx context.Context, path, requestID string, data []byte) ([]byte, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, g.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	return send(ctx, g.client, req)
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// CreatePayment 创建 CAPTURE 订单，返回买家确认链接
func (g *paypalGateway) CreatePayment(ctx context.Context, order *model.Order) (*Handle, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": order.OrderNo,
			"custom_id":    order.OrderNo,
			"amount":       paypalAmount{CurrencyCode: g.currency, Value: order.TotalAmount.StringFixed(2)},
		}},
	}
	if g.returnURL != "" || g.cancelURL != "" {
		payload["application_context"] = map[string]string{
			"return_url": g.returnURL,
			"cancel_url": g.cancelURL,
		}
	}

	var resp struct {
		ID     string       `json:"id"`
		Status string       `json:"status"`
		Links  []paypalLink `json:"links"`
	}
	// 以订单号作为幂等键，重复发起返回同一个PayPal订单
	if err := g.call(ctx, "/v2/checkout/orders", "order-"+order.OrderNo, payload, &resp); err != nil {
		return nil, apperror.Upstream(constants.ErrPaymentAttemptFailed, err)
	}
	for _, link := range resp.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return &Handle{
				Gateway:   PayPal,
				OrderNo:   order.OrderNo,
				Type:      HandleRedirect,
				Payload:   link.Href,
				Reference: resp.ID,
			}, nil
		}
	}
	return nil, apperror.Upstream(constants.ErrPaymentAttemptFailed, errors.New("paypal approve link missing"))
}

// VerifySignature 调用 verify-webhook-signature，由PayPal判定通知真伪
func (g *paypalGateway) VerifySignature(ctx context.Context, n *Notification) bool {
	if n == nil || len(n.Body) == 0 || !json.Valid(n.Body) {
		return false
	}
	payload := map[string]interface{}{
		"webhook_id":    g.webhookID,
		"webhook_event": json.RawMessage(n.Body),
	}
	for header, field := range paypalTransmissionHeaders {
		v := n.Header.Get(header)
		if v == "" {
			return false
		}
		payload[field] = v
	}

	var resp struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := g.call(ctx, "/v1/notifications/verify-webhook-signature", "", payload, &resp); err != nil {
		return false
	}
	return resp.VerificationStatus == "SUCCESS"
}

type paypalWebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// paypalCapture 捕获结果，既是 PAYMENT.CAPTURE.COMPLETED 的 resource，也出现在 capture 接口的响应中
type paypalCapture struct {
	ID         string       `json:"id"`
	Status     string       `json:"status"`
	CustomID   string       `json:"custom_id"`
	Amount     paypalAmount `json:"amount"`
	CreateTime string       `json:"create_time"`
}

// HandleCallback 买家确认后的 CHECKOUT.ORDER.APPROVED 由本地发起扣款，
// PAYMENT.CAPTURE.COMPLETED 直接结算
func (g *paypalGateway) HandleCallback(ctx context.Context, n *Notification) (*CallbackResult, error) {
	if !g.VerifySignature(ctx, n) {
		return nil, fail(constants.ErrSignatureInvalid)
	}
	var event paypalWebhookEvent
	if err := json.Unmarshal(n.Body, &event); err != nil {
		return nil, fail(constants.ErrSignatureInvalid)
	}

	switch event.EventType {
	case paypalOrderApproved:
		var order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(event.Resource, &order); err != nil || order.ID == "" {
			return nil, fail(constants.ErrTradeNotSuccess)
		}
		return g.capture(ctx, order.ID)
	case paypalCaptureCompleted:
		var capture paypalCapture
		if err := json.Unmarshal(event.Resource, &capture); err != nil {
			return nil, fail(constants.ErrTradeNotSuccess)
		}
		return g.captureResult(capture, "")
	default:
		return nil, fail(constants.ErrTradeNotSuccess)
	}
}

// capture 对已确认的 PayPal 订单扣款，以订单ID作为幂等键
func (g *paypalGateway) capture(ctx context.Context, paypalOrderID string) (*CallbackResult, error) {
	var resp struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
			Payments struct {
				Captures []paypalCapture `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	path := "/v2/checkout/orders/" + url.PathEscape(paypalOrderID) + "/capture"
	if err := g.call(ctx, path, "capture-"+paypalOrderID, struct{}{}, &resp); err != nil {
		return nil, apperror.Upstream(constants.ErrCaptureFailed, err)
	}
	for _, unit := range resp.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.Status == "COMPLETED" {
				return g.captureResult(capture, unit.CustomID)
			}
		}
	}
	return nil, fail(constants.ErrTradeNotSuccess)
}

func (g *paypalGateway) captureResult(capture paypalCapture, customID string) (*CallbackResult, error) {
	if capture.CustomID == "" {
		capture.CustomID = customID
	}
	if capture.Status != "COMPLETED" || capture.CustomID == "" || capture.ID == "" {
		return nil, fail(constants.ErrTradeNotSuccess)
	}
	amount, err := decimal.NewFromString(capture.Amount.Value)
	if err != nil || !strings.EqualFold(capture.Amount.CurrencyCode, g.currency) {
		return nil, fail(constants.ErrAmountMismatch)
	}

	paidAt := time.Now()
	if t, err := time.Parse(time.RFC3339, capture.CreateTime); err == nil {
		paidAt = t
	}
	return &CallbackResult{
		OrderNo: capture.CustomID,
		TradeNo: capture.ID,
		Amount:  amount,
		PaidAt:  paidAt,
	}, nil
}

// Refund 对 capture 全额退款，trade_no 即 capture id
func (g *paypalGateway) Refund(ctx context.Context, order *model.Order) (*RefundResult, error) {
	if order.TradeNo == nil || *order.TradeNo == "" {
		return nil, apperror.Conflict(constants.ErrNotRefundable)
	}
	payload := map[string]interface{}{
		"amount": paypalAmount{CurrencyCode: g.currency, Value: order.TotalAmount.StringFixed(2)},
	}
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := "/v2/payments/captures/" + url.PathEscape(*order.TradeNo) + "/refund"
	if err := g.call(ctx, path, uuid.NewString(), payload, &resp); err != nil {
		return nil, apperror.Upstream(constants.ErrRefundFailed, err)
	}
	if resp.Status != "COMPLETED" && resp.Status != "PENDING" {
		return nil, apperror.Upstream(constants.ErrRefundFailed, fmt.Errorf("paypal refund status %q", resp.Status))
	}
	return &RefundResult{
		Gateway:  PayPal,
		OrderNo:  order.OrderNo,
		RefundNo: resp.ID,
		Amount:   order.TotalAmount,
		Status:   strings.ToLower(resp.Status),
	}, nil
}
