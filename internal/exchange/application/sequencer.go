package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// SequenceService 定序器：为入站事件分配全局连续的 sequenceId，
// 按幂等键去重，先持久化再转发。计数器递增与落库由互斥锁串行化，
// 保证链条无空洞。
type SequenceService struct {
	store    domain.EventStore
	producer domain.EventProducer
	logger   *slog.Logger

	mu       sync.Mutex
	sequence int64
	// 已发出的最大时间戳，墙钟回拨时继续沿用
	lastTimestamp int64
}

func NewSequenceService(store domain.EventStore, producer domain.EventProducer, logger *slog.Logger) *SequenceService {
	return &SequenceService{
		store:    store,
		producer: producer,
		logger:   logger.With("module", "sequencer"),
	}
}

// Recover 从事件日志恢复计数器，保证重启后不会重发已用过的 id。
func (s *SequenceService) Recover(ctx context.Context) error {
	maxID, createdAt, err := s.store.MaxSequenceID(ctx)
	if err != nil {
		return fmt.Errorf("recover max sequence id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence = maxID
	s.lastTimestamp = createdAt
	s.logger.Info("sequence counter recovered", "sequenceId", maxID, "lastTimestamp", createdAt)
	return nil
}

// SequenceID 当前计数器值。
func (s *SequenceService) SequenceID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// SequenceMessages 为一批事件定序。携带幂等键的事件先查批内集合再查
// 幂等存储，重复的丢弃并告警；其余事件分配 previousId/sequenceId、
// 打上不回退的时间戳，与幂等记录一起原子落库后返回。
func (s *SequenceService) SequenceMessages(ctx context.Context, messages []domain.Event) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.lastTimestamp {
		s.logger.Warn("wall clock moved backwards, reusing last timestamp",
			"now", now, "lastTimestamp", s.lastTimestamp)
	} else {
		s.lastTimestamp = now
	}

	sequenced := make([]domain.Event, 0, len(messages))
	stored := make([]*domain.StoredEvent, 0, len(messages))
	var uniques []*domain.UniqueEvent
	var batchKeys map[string]struct{}

	for _, message := range messages {
		base := message.Base()
		if key := base.UniqueID; key != "" {
			if _, dup := batchKeys[key]; dup {
				s.logger.Warn("ignore duplicate unique event in batch", "uniqueId", key)
				continue
			}
			seen, err := s.store.HasUnique(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("check unique key %q: %w", key, err)
			}
			if seen {
				s.logger.Warn("ignore already sequenced unique event", "uniqueId", key)
				continue
			}
			if batchKeys == nil {
				batchKeys = make(map[string]struct{})
			}
			batchKeys[key] = struct{}{}
			uniques = append(uniques, &domain.UniqueEvent{
				UniqueID:  key,
				CreatedAt: s.lastTimestamp,
			})
		}

		previousID := s.sequence
		s.sequence++
		base.PreviousID = previousID
		base.SequenceID = s.sequence
		base.CreatedAt = s.lastTimestamp
		if len(uniques) > 0 && base.UniqueID != "" {
			uniques[len(uniques)-1].SequenceID = base.SequenceID
		}

		data, err := domain.SerializeEvent(message)
		if err != nil {
			return nil, fmt.Errorf("serialize event %d: %w", base.SequenceID, err)
		}
		stored = append(stored, &domain.StoredEvent{
			SequenceID: base.SequenceID,
			PreviousID: previousID,
			Data:       data,
			CreatedAt:  s.lastTimestamp,
		})
		sequenced = append(sequenced, message)
	}

	if len(stored) == 0 {
		return nil, nil
	}
	if err := s.store.AppendBatch(ctx, stored, uniques); err != nil {
		return nil, fmt.Errorf("persist sequenced batch: %w", err)
	}
	return sequenced, nil
}

// ProcessMessages 定序并转发。持久化或转发失败都不能吞掉：
// 上层必须停止继续定序，否则链条会出现空洞。
func (s *SequenceService) ProcessMessages(ctx context.Context, messages []domain.Event) error {
	start := time.Now()
	sequenced, err := s.SequenceMessages(ctx, messages)
	if err != nil {
		return err
	}
	if len(sequenced) == 0 {
		return nil
	}
	s.logger.Info("sequenced messages", "count", len(sequenced),
		"sequenceId", sequenced[len(sequenced)-1].Base().SequenceID,
		"elapsed", time.Since(start))
	if err := s.producer.SendEvents(ctx, sequenced); err != nil {
		return fmt.Errorf("forward sequenced events: %w", err)
	}
	return nil
}
