package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]OrderStatus{
		{OrderStatusPending, OrderStatusPaid},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusPaid, OrderStatusShipped},
		{OrderStatusPaid, OrderStatusCancelled},
		{OrderStatusShipped, OrderStatusCompleted},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]OrderStatus{
		{OrderStatusPaid, OrderStatusPending},
		{OrderStatusPending, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusCancelled},
		{OrderStatusCompleted, OrderStatusCancelled},
		{OrderStatusCancelled, OrderStatusPending},
		{OrderStatusCancelled, OrderStatusPaid},
		{"unknown", OrderStatusPaid},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestOrderStatusHelpers(t *testing.T) {
	assert.True(t, OrderStatusShipped.Settled())
	assert.False(t, OrderStatusPending.Settled())
	assert.False(t, OrderStatusCancelled.Settled())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatus("refunding").Valid())
}

func TestItemsTotal(t *testing.T) {
	o := Order{Items: []OrderItem{
		{Quantity: 2, Price: decimal.RequireFromString("88.00")},
		{Quantity: 3, Price: decimal.RequireFromString("0.10")},
	}}
	assert.True(t, o.ItemsTotal().Equal(decimal.RequireFromString("176.30")))
}

func TestEmptyJSON(t *testing.T) {
	for _, raw := range []string{"", " ", "null", "{}", "[]", `""`} {
		assert.True(t, EmptyJSON([]byte(raw)), raw)
	}
	assert.False(t, EmptyJSON([]byte(`{"city":"Hangzhou"}`)))
}

func TestConfigString(t *testing.T) {
	cfg := map[string]interface{}{"mch_id": float64(1900000109), "rate": 0.5, "app_id": "wx123", "empty": nil}
	assert.Equal(t, "1900000109", ConfigString(cfg, "mch_id"))
	assert.Equal(t, "0.5", ConfigString(cfg, "rate"))
	assert.Equal(t, "wx123", ConfigString(cfg, "app_id"))
	assert.Equal(t, "", ConfigString(cfg, "empty"))
	assert.Equal(t, "", ConfigString(cfg, "missing"))
}
