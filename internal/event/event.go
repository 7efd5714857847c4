// Package event 订单事件投递。事件在事务提交后异步发送，失败只记录日志，不影响订单流程
package event

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"shopadmin/internal/model"
	"shopadmin/pkg/async"
	"shopadmin/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type 事件类型
type Type string

const (
	OrderCreated   Type = "order.created"
	OrderPaid      Type = "order.paid"
	OrderShipped   Type = "order.shipped"
	OrderCompleted Type = "order.completed"
	OrderCancelled Type = "order.cancelled"
	OrderRefunded  Type = "order.refunded"
)

// Envelope 事件消息体
type Envelope struct {
	EventID     string          `json:"event_id"`
	Type        Type            `json:"type"`
	OrderID     uint64          `json:"order_id"`
	OrderNo     string          `json:"order_no"`
	UserID      uint64          `json:"user_id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Gateway     string          `json:"gateway,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewEnvelope 由订单快照生成事件
func NewEnvelope(t Type, order *model.Order) Envelope {
	return Envelope{
		EventID:     uuid.NewString(),
		Type:        t,
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Gateway:     order.Gateway(),
		OccurredAt:  time.Now(),
	}
}

// Key 同一订单的事件使用相同分区键，保证顺序
func (e Envelope) Key() []byte {
	return []byte(strconv.FormatUint(e.OrderID, 10))
}

// Publisher 消息发送
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// Emitter 订单服务使用的事件出口
type Emitter interface {
	Emit(t Type, order *model.Order)
}

// NopEmitter 丢弃所有事件
type NopEmitter struct{}

func (NopEmitter) Emit(Type, *model.Order) {}

// AsyncEmitter 通过异步工作器投递事件
type AsyncEmitter struct {
	publisher Publisher
	worker    *async.Worker
	logger    *logger.Logger
	timeout   time.Duration
	retries   int
}

// NewAsyncEmitter 创建异步事件出口，worker 由调用方启动与停止
func NewAsyncEmitter(publisher Publisher, worker *async.Worker, logger *logger.Logger) *AsyncEmitter {
	return &AsyncEmitter{
		publisher: publisher,
		worker:    worker,
		logger:    logger,
		timeout:   5 * time.Second,
		retries:   2,
	}
}

// Emit 序列化订单快照后入队
func (e *AsyncEmitter) Emit(t Type, order *model.Order) {
	env := NewEnvelope(t, order)
	value, err := json.Marshal(env)
	if err != nil {
		e.logger.Error("序列化订单事件失败", "type", t, "order_no", order.OrderNo, "error", err)
		return
	}
	key := env.Key()
	ok := e.worker.Submit(async.Task{
		ID:       env.EventID,
		Name:     string(t),
		Timeout:  e.timeout,
		RetryMax: e.retries,
		Handler: func(ctx context.Context) error {
			return e.publisher.Publish(ctx, key, value)
		},
	})
	if !ok {
		e.logger.Warn("订单事件未投递", "type", t, "order_no", order.OrderNo)
	}
}
