package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// BatchHandler 处理一批消息体。返回错误时偏移量不提交，整批重投。
type BatchHandler func(ctx context.Context, values [][]byte) error

// BatchConsumer 批量拉取消费者。攒批降低下游落库次数，
// 处理成功后才提交偏移量，保证至少一次投递。
type BatchConsumer struct {
	reader  *kafka.Reader
	handler BatchHandler
	logger  *slog.Logger

	maxBatch  int
	maxLinger time.Duration
}

func NewBatchConsumer(cfg KafkaConfig, topic string, handler BatchHandler, logger *slog.Logger) *BatchConsumer {
	return &BatchConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			StartOffset: kafka.FirstOffset,
			MaxBytes:    10e6,
		}),
		handler:   handler,
		logger:    logger.With("module", "kafka_consumer", "topic", topic),
		maxBatch:  1000,
		maxLinger: 10 * time.Millisecond,
	}
}

// Run 消费循环，ctx 取消后返回。
func (c *BatchConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message batch: %w", err)
		}
		if len(batch) == 0 {
			continue
		}

		values := make([][]byte, 0, len(batch))
		for _, msg := range batch {
			values = append(values, msg.Value)
		}
		if err := c.handler(ctx, values); err != nil {
			// 不提交偏移量，下一轮重投整批
			c.logger.Error("batch handler failed, offsets not committed",
				"count", len(batch), "error", err)
			return fmt.Errorf("handle message batch: %w", err)
		}
		if err := c.reader.CommitMessages(ctx, batch...); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit offsets: %w", err)
		}
	}
}

// fetchBatch 阻塞取到第一条后，在短暂的攒批窗口内继续收集。
func (c *BatchConsumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}

	lingerCtx, cancel := context.WithTimeout(ctx, c.maxLinger)
	defer cancel()
	for len(batch) < c.maxBatch {
		msg, err := c.reader.FetchMessage(lingerCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				break
			}
			return nil, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}
