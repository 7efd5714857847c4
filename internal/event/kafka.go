package event

import (
	"context"
	"fmt"
	"time"

	"shopadmin/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// kafkaPublisher 基于 kafka-go Writer 的发送端
type kafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewKafkaPublisher 创建Kafka发送端，按分区键哈希
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	}
	log.Info("Kafka发送端已初始化", "brokers", brokers, "topic", topic)
	return &kafkaPublisher{writer: writer, logger: log}
}

func (p *kafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// nopPublisher 未配置Kafka时使用
type nopPublisher struct{}

// NewNopPublisher 丢弃所有消息
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, []byte, []byte) error { return nil }

func (nopPublisher) Close() error { return nil }
