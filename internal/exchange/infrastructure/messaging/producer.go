// Package messaging 提供事件流与行情流的 Kafka 收发实现。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// 事件主题只有单分区。sequenceId 链条要求全序，
// 统一分区键保证消费顺序与定序顺序一致。
const eventPartitionKey = "sequenced"

// KafkaConfig Kafka 连接配置
type KafkaConfig struct {
	Brokers      []string
	EventTopic   string
	TickTopic    string
	GroupID      string
	MaxRetries   int
	RetryBackoff time.Duration
}

// EventProducer 是 domain.EventProducer 接口的 Kafka 实现。
type EventProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewEventProducer(cfg KafkaConfig) *EventProducer {
	return &EventProducer{
		writer: newWriter(cfg),
		topic:  cfg.EventTopic,
	}
}

// SendEvents 将整批已定序事件按原序写入事件主题。
func (p *EventProducer) SendEvents(ctx context.Context, events []domain.Event) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		data, err := domain.SerializeEvent(event)
		if err != nil {
			return fmt.Errorf("serialize event %d: %w", event.Base().SequenceID, err)
		}
		messages = append(messages, kafka.Message{
			Topic: p.topic,
			Key:   []byte(eventPartitionKey),
			Value: data,
		})
	}
	if len(messages) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("write events to kafka: %w", err)
	}
	return nil
}

// Close 关闭生产者
func (p *EventProducer) Close() error {
	return p.writer.Close()
}

// TickProducer 是 domain.TickProducer 接口的 Kafka 实现。
type TickProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewTickProducer(cfg KafkaConfig) *TickProducer {
	return &TickProducer{
		writer: newWriter(cfg),
		topic:  cfg.TickTopic,
	}
}

// SendTicks 发布一批成交行情。
func (p *TickProducer) SendTicks(ctx context.Context, ticks []*domain.TickMessage) error {
	messages := make([]kafka.Message, 0, len(ticks))
	for _, tick := range ticks {
		data, err := json.Marshal(tick)
		if err != nil {
			return fmt.Errorf("marshal tick message: %w", err)
		}
		messages = append(messages, kafka.Message{
			Topic: p.topic,
			Value: data,
		})
	}
	if len(messages) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("write ticks to kafka: %w", err)
	}
	return nil
}

// Close 关闭生产者
func (p *TickProducer) Close() error {
	return p.writer.Close()
}

func newWriter(cfg KafkaConfig) *kafka.Writer {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            retries,
		WriteBackoffMin:        backoff,
		WriteBackoffMax:        backoff * 10,
	}
}
