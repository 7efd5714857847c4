package payment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopadmin/internal/apperror"
	"shopadmin/internal/constants"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWechat(t *testing.T, apiBase, signType string) *wechatGateway {
	t.Helper()
	gw, err := NewWechat(map[string]interface{}{
		"app_id":    "wx2421b1c4370ec43b",
		"mch_id":    float64(10000100),
		"api_key":   "192006250b4c09247ec02edce69f6a2d",
		"api_base":  apiBase,
		"sign_type": signType,
	}, Options{NotifyURL: "https://shop.example.com/api/v1/payments/callback/wechat"})
	require.NoError(t, err)
	return gw.(*wechatGateway)
}

func signedWechatXML(t *testing.T, g *wechatGateway, params map[string]string) []byte {
	t.Helper()
	params["sign"] = g.sign(params, params["sign_type"])
	data, err := encodeXMLMap(params)
	require.NoError(t, err)
	return data
}

func wechatNotifyParams() map[string]string {
	return map[string]string{
		"appid":          "wx2421b1c4370ec43b",
		"mch_id":         "10000100",
		"nonce_str":      "5d2b6c2a8db53831f7eda20af46e531c",
		"return_code":    "SUCCESS",
		"result_code":    "SUCCESS",
		"out_trade_no":   "2026010203040500010042",
		"transaction_id": "4200000000202601020000000001",
		"total_fee":      "17600",
		"time_end":       "20260102030500",
	}
}

func TestWechatSignMatchesKnownVector(t *testing.T) {
	g := newTestWechat(t, "", "")
	params := map[string]string{
		"appid":       "wxd930ea5d5a258f4f",
		"mch_id":      "10000100",
		"device_info": "1000",
		"body":        "test",
		"nonce_str":   "ibuaiVcKdpRxkhJA",
	}
	g.apiKey = "192006250b4c09247ec02edce69f6a2d"
	assert.Equal(t, "9A0A8659F005D6984697E2CA0A9CF3B7", g.sign(params, wechatSignMD5))
}

func TestWechatHandleCallback(t *testing.T) {
	for _, signType := range []string{"", wechatSignHMAC} {
		g := newTestWechat(t, "", signType)
		params := wechatNotifyParams()
		if signType != "" {
			params["sign_type"] = signType
		}
		n := &Notification{Body: signedWechatXML(t, g, params)}

		require.True(t, g.VerifySignature(context.Background(), n), signType)
		result, err := g.HandleCallback(context.Background(), n)
		require.NoError(t, err)
		assert.Equal(t, "2026010203040500010042", result.OrderNo)
		assert.Equal(t, "4200000000202601020000000001", result.TradeNo)
		assert.True(t, result.Amount.Equal(decimal.RequireFromString("176.00")))
	}
}

func TestWechatTamperedCallbackRejected(t *testing.T) {
	g := newTestWechat(t, "", "")
	body := signedWechatXML(t, g, wechatNotifyParams())
	tampered := []byte(strings.Replace(string(body), "17600", "1", 1))

	n := &Notification{Body: tampered}
	assert.False(t, g.VerifySignature(context.Background(), n))
	_, err := g.HandleCallback(context.Background(), n)
	assert.Equal(t, apperror.KindTrust, apperror.KindOf(err))
}

func TestWechatVerifyFailsClosed(t *testing.T) {
	g := newTestWechat(t, "", "")
	for _, body := range []string{"", "<xml>", "not xml", "<xml><a><b>1</b></a></xml>", "<xml><appid>x</appid></xml>"} {
		assert.False(t, g.VerifySignature(context.Background(), &Notification{Body: []byte(body)}), body)
	}
}

func TestWechatResultFail(t *testing.T) {
	g := newTestWechat(t, "", "")
	params := wechatNotifyParams()
	params["result_code"] = "FAIL"

	_, err := g.HandleCallback(context.Background(), &Notification{Body: signedWechatXML(t, g, params)})
	assert.Equal(t, constants.ErrTradeNotSuccess, apperror.Message(err))
}

func TestWechatCreatePayment(t *testing.T) {
	var g *wechatGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pay/unifiedorder", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		req, err := decodeXMLMap(body)
		require.NoError(t, err)
		assert.True(t, g.verify(req))
		assert.Equal(t, "17600", req["total_fee"])
		assert.Equal(t, "NATIVE", req["trade_type"])

		_, _ = w.Write(signedWechatXML(t, g, map[string]string{
			"return_code": "SUCCESS",
			"result_code": "SUCCESS",
			"prepay_id":   "wx201410272009395522657a690389285100",
			"code_url":    "weixin://wxpay/bizpayurl?pr=abc",
		}))
	}))
	defer srv.Close()
	g = newTestWechat(t, srv.URL, "")

	handle, err := g.CreatePayment(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, HandleQRCode, handle.Type)
	assert.Equal(t, "weixin://wxpay/bizpayurl?pr=abc", handle.Payload)
}

func TestWechatCreatePaymentUnsignedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<xml><return_code>SUCCESS</return_code><result_code>SUCCESS</result_code><code_url>weixin://x</code_url><sign>BAD</sign></xml>`))
	}))
	defer srv.Close()
	g := newTestWechat(t, srv.URL, "")

	_, err := g.CreatePayment(context.Background(), testOrder())
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
}

func TestWechatRefundInvalidCert(t *testing.T) {
	g := newTestWechat(t, "", "")
	g.certP12 = "bm90LWEtY2VydA=="
	_, err := g.Refund(context.Background(), testOrder())
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestXMLMapRoundTripCDATA(t *testing.T) {
	params, err := decodeXMLMap([]byte(`<xml><return_code><![CDATA[SUCCESS]]></return_code><total_fee>1</total_fee></xml>`))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", params["return_code"])
	assert.Equal(t, "1", params["total_fee"])
}

func TestWechatNackEscapesMessage(t *testing.T) {
	msg := `bad ]]><return_code>SUCCESS</return_code> & <x>`
	contentType, body := Nack(Wechat, msg)
	assert.Contains(t, contentType, "application/xml")

	params, err := decodeXMLMap(body)
	require.NoError(t, err)
	assert.Equal(t, "FAIL", params["return_code"])
	assert.Equal(t, msg, params["return_msg"])
}
