package event

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"shopadmin/internal/model"
	"shopadmin/pkg/async"
	"shopadmin/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	values [][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestAsyncEmitterPublishesEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	worker := async.NewWorker(8, logger.NewNop())
	worker.Start(1)
	emitter := NewAsyncEmitter(pub, worker, logger.NewNop())

	gateway := "alipay"
	emitter.Emit(OrderPaid, &model.Order{
		ID:             12,
		OrderNo:        "N12",
		UserID:         3,
		Status:         model.OrderStatusPaid,
		TotalAmount:    decimal.RequireFromString("176.00"),
		PaymentGateway: &gateway,
	})
	worker.Stop()

	require.Len(t, pub.values, 1)
	assert.Equal(t, "12", pub.keys[0])
	var env Envelope
	require.NoError(t, json.Unmarshal(pub.values[0], &env))
	assert.Equal(t, OrderPaid, env.Type)
	assert.Equal(t, "N12", env.OrderNo)
	assert.Equal(t, "alipay", env.Gateway)
	assert.NotEmpty(t, env.EventID)
	assert.True(t, env.TotalAmount.Equal(decimal.RequireFromString("176")))
}

func TestEmitAfterStopDoesNotPanic(t *testing.T) {
	worker := async.NewWorker(1, logger.NewNop())
	worker.Start(1)
	worker.Stop()
	emitter := NewAsyncEmitter(NewNopPublisher(), worker, logger.NewNop())
	assert.NotPanics(t, func() { emitter.Emit(OrderCreated, &model.Order{ID: 1}) })
}
