// Package metrics 订单与支付的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopadmin"

// Metrics 业务指标，nil 接收者上的方法为空操作
type Metrics struct {
	ordersCreated      prometheus.Counter
	orderTransitions   *prometheus.CounterVec
	stockRejections    prometheus.Counter
	paymentCalls       *prometheus.CounterVec
	paymentLatency     *prometheus.HistogramVec
	callbacks          *prometheus.CounterVec
	scheduledCancelled prometheus.Counter
}

// New 在 reg 上注册全部指标
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ordersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "order", Name: "created_total",
			Help: "Orders created.",
		}),
		orderTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "order", Name: "transitions_total",
			Help: "Order status transitions by target status.",
		}, []string{"status"}),
		stockRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "order", Name: "insufficient_stock_total",
			Help: "Order creations rejected for insufficient stock.",
		}),
		paymentCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payment", Name: "gateway_calls_total",
			Help: "Outbound gateway calls by gateway, operation and result.",
		}, []string{"gateway", "operation", "result"}),
		paymentLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "payment", Name: "gateway_call_seconds",
			Help:    "Outbound gateway call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"gateway", "operation"}),
		callbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payment", Name: "callbacks_total",
			Help: "Payment callbacks by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		scheduledCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "order", Name: "expired_total",
			Help: "Pending orders cancelled by the expiry scheduler.",
		}),
	}
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) OrderTransition(status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) InsufficientStock() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
}

// GatewayCall 记录一次网关调用
func (m *Metrics) GatewayCall(gateway, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.paymentCalls.WithLabelValues(gateway, operation, result).Inc()
	m.paymentLatency.WithLabelValues(gateway, operation).Observe(seconds)
}

// Callback outcome: paid / duplicate / rejected
func (m *Metrics) Callback(gateway, outcome string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) OrderExpired() {
	if m == nil {
		return
	}
	m.scheduledCancelled.Inc()
}
