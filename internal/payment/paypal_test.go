package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"
	"shopadmin/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePayPal 模拟PayPal接口
type fakePayPal struct {
	tokenCalls    int32
	captureCalls  int32
	verifyStatus  string
	captureStatus int
	lastVerify    map[string]interface{}
}

// authorized 只接受最新签发的 token
func authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer A21AA" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		return false
	}
	return true
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"A21AA","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.lastVerify = map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastVerify)
		_, _ = w.Write([]byte(`{"verification_status":"` + f.verifyStatus + `"}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "order-2026010203040500010042", r.Header.Get("PayPal-Request-Id"))
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "CAPTURE", body["intent"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","links":[
			{"href":"https://api.sandbox.paypal.com/v2/checkout/orders/5O190127TN364715T","rel":"self"},
			{"href":"https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T","rel":"approve"}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/5O190127TN364715T/capture", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		atomic.AddInt32(&f.captureCalls, 1)
		assert.Equal(t, "capture-5O190127TN364715T", r.Header.Get("PayPal-Request-Id"))
		if f.captureStatus != 0 {
			w.WriteHeader(f.captureStatus)
			_, _ = w.Write([]byte(`{"name":"INTERNAL_SERVER_ERROR"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[{
			"reference_id":"2026010203040500010042","custom_id":"2026010203040500010042",
			"payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED",
			"amount":{"currency_code":"USD","value":"176.00"},"create_time":"2026-01-02T03:05:00Z"}]}}]}`))
	})
	mux.HandleFunc("/v2/payments/captures/3C679366HH908993F/refund", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1JU08902781691411","status":"COMPLETED"}`))
	})
	return mux
}

func newTestPayPal(t *testing.T, fake *fakePayPal) *paypalGateway {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	gw, err := NewPayPal(map[string]interface{}{
		"client_id":     "client",
		"client_secret": "secret",
		"webhook_id":    "WH-1",
		"api_base":      srv.URL,
	}, Options{})
	require.NoError(t, err)
	return gw.(*paypalGateway)
}

func paypalNotification() *Notification {
	body := `{"id":"WH-58D329510W468432D-8HN650336L201105X","event_type":"PAYMENT.CAPTURE.COMPLETED",
		"resource":{"id":"3C679366HH908993F","status":"COMPLETED","custom_id":"2026010203040500010042",
		"amount":{"currency_code":"USD","value":"176.00"},"create_time":"2026-01-02T03:05:00Z"}}`
	header := http.Header{}
	header.Set("PAYPAL-AUTH-ALGO", "SHA256withRSA")
	header.Set("PAYPAL-CERT-URL", "https://api.paypal.com/v1/notifications/certs/CERT-360caa42")
	header.Set("PAYPAL-TRANSMISSION-ID", "dfb3be50-fd74-11e4-8bf3-77339302725b")
	header.Set("PAYPAL-TRANSMISSION-SIG", "thrK+3fz1b+2YnT3+")
	header.Set("PAYPAL-TRANSMISSION-TIME", "2026-01-02T03:05:01Z")
	return &Notification{Body: []byte(body), Header: header}
}

func TestPayPalCreatePaymentCachesToken(t *testing.T) {
	fake := &fakePayPal{}
	g := newTestPayPal(t, fake)

	for i := 0; i < 2; i++ {
		handle, err := g.CreatePayment(context.Background(), testOrder())
		require.NoError(t, err)
		assert.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T", handle.Payload)
		assert.Equal(t, "5O190127TN364715T", handle.Reference)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokenCalls))
}

func TestPayPalHandleCallback(t *testing.T) {
	fake := &fakePayPal{verifyStatus: "SUCCESS"}
	g := newTestPayPal(t, fake)

	result, err := g.HandleCallback(context.Background(), paypalNotification())
	require.NoError(t, err)
	assert.Equal(t, "2026010203040500010042", result.OrderNo)
	assert.Equal(t, "3C679366HH908993F", result.TradeNo)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("176")))
	assert.Equal(t, "WH-1", fake.lastVerify["webhook_id"])
	assert.Equal(t, "SHA256withRSA", fake.lastVerify["auth_algo"])
}

func TestPayPalVerificationFailure(t *testing.T) {
	fake := &fakePayPal{verifyStatus: "FAILURE"}
	g := newTestPayPal(t, fake)

	_, err := g.HandleCallback(context.Background(), paypalNotification())
	assert.Equal(t, apperror.KindTrust, apperror.KindOf(err))
	assert.Equal(t, constants.ErrSignatureInvalid, apperror.Message(err))
}

func TestPayPalVerifyFailsClosed(t *testing.T) {
	g := newTestPayPal(t, &fakePayPal{verifyStatus: "SUCCESS"})

	missing := paypalNotification()
	missing.Header.Del("PAYPAL-TRANSMISSION-SIG")
	assert.False(t, g.VerifySignature(context.Background(), missing))

	broken := paypalNotification()
	broken.Body = []byte("{")
	assert.False(t, g.VerifySignature(context.Background(), broken))

	// 网关不可达
	g.apiBase = "http://127.0.0.1:1"
	g.tokens = newMemoryTokens()
	assert.False(t, g.VerifySignature(context.Background(), paypalNotification()))
}

func approvedNotification() *Notification {
	n := paypalNotification()
	n.Body = []byte(`{"id":"WH-1TW12345","event_type":"CHECKOUT.ORDER.APPROVED",
		"resource":{"id":"5O190127TN364715T","status":"APPROVED","intent":"CAPTURE",
		"purchase_units":[{"custom_id":"2026010203040500010042","amount":{"currency_code":"USD","value":"176.00"}}]}}`)
	return n
}

func TestPayPalApprovedOrderIsCaptured(t *testing.T) {
	fake := &fakePayPal{verifyStatus: "SUCCESS"}
	g := newTestPayPal(t, fake)

	result, err := g.HandleCallback(context.Background(), approvedNotification())
	require.NoError(t, err)
	assert.Equal(t, "2026010203040500010042", result.OrderNo)
	assert.Equal(t, "3C679366HH908993F", result.TradeNo)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("176.00")))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.captureCalls))
}

func TestPayPalCaptureFailure(t *testing.T) {
	fake := &fakePayPal{verifyStatus: "SUCCESS", captureStatus: http.StatusInternalServerError}
	g := newTestPayPal(t, fake)

	_, err := g.HandleCallback(context.Background(), approvedNotification())
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
	assert.Equal(t, constants.ErrCaptureFailed, apperror.Message(err))
}

func TestPayPalRefreshesRevokedToken(t *testing.T) {
	fake := &fakePayPal{verifyStatus: "SUCCESS"}
	g := newTestPayPal(t, fake)
	require.NoError(t, g.tokens.SetToken(context.Background(), g.tokenKey(), "REVOKED", time.Hour))

	_, err := g.HandleCallback(context.Background(), paypalNotification())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokenCalls))

	token, err := g.tokens.GetToken(context.Background(), g.tokenKey())
	require.NoError(t, err)
	assert.Equal(t, "A21AA", token)
}

func TestPayPalIgnoresOtherEvents(t *testing.T) {
	g := newTestPayPal(t, &fakePayPal{verifyStatus: "SUCCESS"})
	n := paypalNotification()
	n.Body = []byte(`{"event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"3C679366HH908993F","status":"DENIED"}}`)

	_, err := g.HandleCallback(context.Background(), n)
	assert.Equal(t, constants.ErrTradeNotSuccess, apperror.Message(err))
}

func TestPayPalRefund(t *testing.T) {
	g := newTestPayPal(t, &fakePayPal{})
	order := testOrder()
	tradeNo := "3C679366HH908993F"
	order.TradeNo = &tradeNo
	order.Status = model.OrderStatusPaid

	result, err := g.Refund(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "1JU08902781691411", result.RefundNo)
	assert.Equal(t, "completed", result.Status)

	order.TradeNo = nil
	_, err = g.Refund(context.Background(), order)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestFactory(t *testing.T) {
	_, err := New("stripe", nil, Options{})
	assert.Equal(t, apperror.KindTrust, apperror.KindOf(err))

	gw, err := New(PayPal, map[string]interface{}{"client_id": "c"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, PayPal, gw.Name())
}

func TestSchema(t *testing.T) {
	assert.Equal(t, []string{"public_key"}, MissingFields(Alipay, map[string]interface{}{
		"app_id": "1", "private_key": "k",
	}))
	assert.Equal(t, []string{"app_id", "mch_id", "api_key"}, MissingFields(Wechat, map[string]interface{}{"mch_id": " "}))
	assert.Empty(t, MissingFields(PayPal, map[string]interface{}{"client_id": "a", "client_secret": "b", "webhook_id": "c"}))

	masked := MaskSecrets(Wechat, map[string]interface{}{"api_key": "192006250b4c09247ec02edce69f6a2d", "mch_id": "1"})
	assert.Equal(t, "1920******6a2d", masked["api_key"])
	assert.Equal(t, "1", masked["mch_id"])

	_, ok := ParseName("alipay")
	assert.True(t, ok)
	_, ok = ParseName("stripe")
	assert.False(t, ok)
}
