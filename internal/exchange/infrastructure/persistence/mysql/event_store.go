// Package mysql 提供事件日志与成交落库的 MySQL GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// eventStoreImpl 是 domain.EventStore 接口的 GORM 实现。
type eventStoreImpl struct {
	db *gorm.DB
}

// NewEventStore 创建事件日志仓储实例
func NewEventStore(db *gorm.DB) domain.EventStore {
	return &eventStoreImpl{db: db}
}

// AppendBatch 在单个事务内写入整批事件与幂等记录，任何一条失败整批回滚。
func (r *eventStoreImpl) AppendBatch(ctx context.Context, events []*domain.StoredEvent, uniques []*domain.UniqueEvent) error {
	if len(events) == 0 && len(uniques) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(events) > 0 {
			models := make([]*EventModel, 0, len(events))
			for _, e := range events {
				models = append(models, toEventModel(e))
			}
			if err := tx.Create(models).Error; err != nil {
				return err
			}
		}
		if len(uniques) > 0 {
			models := make([]*UniqueEventModel, 0, len(uniques))
			for _, u := range uniques {
				models = append(models, &UniqueEventModel{
					UniqueID:   u.UniqueID,
					SequenceID: u.SequenceID,
					CreatedAt:  u.CreatedAt,
				})
			}
			if err := tx.Create(models).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append event batch: %w", err)
	}
	return nil
}

// LoadEventsAfter 按 sequenceId 升序返回大于给定值的全部事件。
func (r *eventStoreImpl) LoadEventsAfter(ctx context.Context, sequenceID int64) ([]*domain.StoredEvent, error) {
	var models []*EventModel
	err := r.db.WithContext(ctx).
		Where("sequence_id > ?", sequenceID).
		Order("sequence_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load events after %d: %w", sequenceID, err)
	}
	events := make([]*domain.StoredEvent, 0, len(models))
	for _, m := range models {
		events = append(events, toStoredEvent(m))
	}
	return events, nil
}

// MaxSequenceID 返回最大已持久化的 sequenceId 及其时间戳，空日志返回 (0, 0)。
func (r *eventStoreImpl) MaxSequenceID(ctx context.Context) (int64, int64, error) {
	var model EventModel
	err := r.db.WithContext(ctx).Order("sequence_id DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to query max sequence id: %w", err)
	}
	return model.SequenceID, model.CreatedAt, nil
}

// HasUnique 检查幂等键是否已定序。
func (r *eventStoreImpl) HasUnique(ctx context.Context, uniqueID string) (bool, error) {
	var model UniqueEventModel
	err := r.db.WithContext(ctx).Where("unique_id = ?", uniqueID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query unique key %q: %w", uniqueID, err)
	}
	return true, nil
}
