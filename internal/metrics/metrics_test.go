package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.OrderCreated()
	m.OrderTransition("paid")
	m.OrderTransition("paid")
	m.GatewayCall("alipay", "create", 0.2, nil)
	m.GatewayCall("alipay", "create", 1.5, errors.New("timeout"))
	m.Callback("wechat", "duplicate")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.orderTransitions.WithLabelValues("paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentCalls.WithLabelValues("alipay", "create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacks.WithLabelValues("wechat", "duplicate")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderCreated()
		m.OrderTransition("shipped")
		m.InsufficientStock()
		m.GatewayCall("paypal", "refund", 0, nil)
		m.Callback("paypal", "paid")
		m.OrderExpired()
	})
}
