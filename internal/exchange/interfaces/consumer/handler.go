// Package consumer 将 Kafka 消息解码为领域事件并交给应用层处理。
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/exchange/internal/exchange/application"
	"github.com/wyfcoding/exchange/internal/exchange/domain"
	"github.com/wyfcoding/exchange/internal/exchange/infrastructure/messaging"
)

// NewSequencerHandler 定序器入站处理器：解码接入层发来的原始事件，
// 交给定序器分配 sequenceId。解码失败说明接入层与本服务版本不一致，
// 只能拒绝整批，不能静默跳过造成请求丢失。
func NewSequencerHandler(sequencer *application.SequenceService, logger *slog.Logger) messaging.BatchHandler {
	log := logger.With("module", "sequencer_handler")
	return func(ctx context.Context, values [][]byte) error {
		events := make([]domain.Event, 0, len(values))
		for _, value := range values {
			event, err := domain.DeserializeEvent(value)
			if err != nil {
				log.Error("undecodable inbound message", "error", err)
				return fmt.Errorf("decode inbound message: %w", err)
			}
			events = append(events, event)
		}
		return sequencer.ProcessMessages(ctx, events)
	}
}

// NewEngineHandler 引擎入站处理器：解码已定序事件流，交给引擎应用。
func NewEngineHandler(engine *application.TradingEngine, logger *slog.Logger) messaging.BatchHandler {
	log := logger.With("module", "engine_handler")
	return func(ctx context.Context, values [][]byte) error {
		events := make([]domain.Event, 0, len(values))
		for _, value := range values {
			event, err := domain.DeserializeEvent(value)
			if err != nil {
				log.Error("undecodable sequenced event", "error", err)
				return fmt.Errorf("decode sequenced event: %w", err)
			}
			events = append(events, event)
		}
		engine.ProcessMessages(ctx, events)
		if engine.Fatal() {
			return fmt.Errorf("trading engine entered fatal state at sequence %d", engine.LastSequenceID())
		}
		return nil
	}
}
