package payment

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM
}

func newTestAlipay(t *testing.T, gatewayURL string) *alipayGateway {
	t.Helper()
	priv, pub := testKeyPair(t)
	gw, err := NewAlipay(map[string]interface{}{
		"app_id":      "2021000000000001",
		"private_key": priv,
		"public_key":  pub,
		"gateway_url": gatewayURL,
	}, Options{NotifyURL: "https://shop.example.com/api/v1/payments/callback/alipay"})
	require.NoError(t, err)
	return gw.(*alipayGateway)
}

func testOrder() *model.Order {
	return &model.Order{
		ID:          1,
		OrderNo:     "2026010203040500010042",
		TotalAmount: decimal.RequireFromString("176.00"),
		Status:      model.OrderStatusPending,
	}
}

// signedAlipayNotify 用同一对密钥模拟支付宝签名的通知
func signedAlipayNotify(t *testing.T, g *alipayGateway, params map[string]string) *Notification {
	t.Helper()
	sign, err := g.sign(params)
	require.NoError(t, err)
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("sign", sign)
	values.Set("sign_type", "RSA2")
	return &Notification{Body: []byte(values.Encode())}
}

func alipayNotifyParams() map[string]string {
	return map[string]string{
		"app_id":       "2021000000000001",
		"out_trade_no": "2026010203040500010042",
		"trade_no":     "2026010222001400000000001",
		"trade_status": "TRADE_SUCCESS",
		"total_amount": "176.00",
		"gmt_payment":  "2026-01-02 03:05:00",
	}
}

func TestAlipayCreatePaymentSignsRedirect(t *testing.T) {
	g := newTestAlipay(t, "https://openapi.example.com/gateway.do")
	handle, err := g.CreatePayment(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, HandleRedirect, handle.Type)
	require.True(t, strings.HasPrefix(handle.Payload, "https://openapi.example.com/gateway.do?"))

	u, err := url.Parse(handle.Payload)
	require.NoError(t, err)
	params := map[string]string{}
	for k := range u.Query() {
		params[k] = u.Query().Get(k)
	}
	assert.Contains(t, params["biz_content"], `"total_amount":"176.00"`)
	assert.Equal(t, "RSA2", params["sign_type"])
	// 支付宝对请求验签时 sign_type 参与签名
	assert.True(t, g.verify(canonicalString(params, "sign"), params["sign"]))
}

func TestAlipayHandleCallback(t *testing.T) {
	g := newTestAlipay(t, "")
	n := signedAlipayNotify(t, g, alipayNotifyParams())

	assert.True(t, g.VerifySignature(context.Background(), n))
	result, err := g.HandleCallback(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, "2026010203040500010042", result.OrderNo)
	assert.Equal(t, "2026010222001400000000001", result.TradeNo)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("176")))
}

func TestAlipayTamperedCallbackRejected(t *testing.T) {
	g := newTestAlipay(t, "")
	n := signedAlipayNotify(t, g, alipayNotifyParams())
	n.Body = []byte(strings.Replace(string(n.Body), "total_amount=176.00", "total_amount=0.01", 1))

	assert.False(t, g.VerifySignature(context.Background(), n))
	_, err := g.HandleCallback(context.Background(), n)
	assert.Equal(t, apperror.KindTrust, apperror.KindOf(err))
	assert.Equal(t, constants.ErrSignatureInvalid, apperror.Message(err))
}

func TestAlipayVerifyFailsClosed(t *testing.T) {
	g := newTestAlipay(t, "")
	for _, body := range []string{"", "sign=%%%", "a=1&sign=not-base64!", "a=1&sign=AAAA"} {
		assert.False(t, g.VerifySignature(context.Background(), &Notification{Body: []byte(body)}), body)
	}
	assert.False(t, g.VerifySignature(context.Background(), nil))
}

func TestAlipayTradeNotSuccess(t *testing.T) {
	g := newTestAlipay(t, "")
	params := alipayNotifyParams()
	params["trade_status"] = "WAIT_BUYER_PAY"

	_, err := g.HandleCallback(context.Background(), signedAlipayNotify(t, g, params))
	assert.Equal(t, apperror.KindTrust, apperror.KindOf(err))
	assert.Equal(t, constants.ErrTradeNotSuccess, apperror.Message(err))
}

func TestAlipayInvalidKey(t *testing.T) {
	_, err := NewAlipay(map[string]interface{}{
		"app_id":      "1",
		"private_key": "not a key",
		"public_key":  "not a key",
	}, Options{})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestAlipayRefund(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		method = r.PostForm.Get("method")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"alipay_trade_refund_response": map[string]string{"code": "10000", "msg": "Success", "refund_fee": "176.00"},
		})
	}))
	defer srv.Close()

	g := newTestAlipay(t, srv.URL)
	order := testOrder()
	order.Status = model.OrderStatusPaid
	result, err := g.Refund(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "alipay.trade.refund", method)
	assert.Equal(t, Alipay, result.Gateway)
	assert.NotEmpty(t, result.RefundNo)
}

func TestAlipayRefundRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alipay_trade_refund_response":{"code":"40004","msg":"Business Failed","sub_code":"ACQ.TRADE_NOT_EXIST"}}`))
	}))
	defer srv.Close()

	g := newTestAlipay(t, srv.URL)
	_, err := g.Refund(context.Background(), testOrder())
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
}
