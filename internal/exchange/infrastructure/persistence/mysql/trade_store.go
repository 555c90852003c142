package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// tradeStoreImpl 是 domain.TradeStore 接口的 GORM 实现。
// 引擎重启回放会重复产生同样的落库请求，全部写入走冲突忽略。
type tradeStoreImpl struct {
	db *gorm.DB
}

// NewTradeStore 创建成交落库仓储实例
func NewTradeStore(db *gorm.DB) domain.TradeStore {
	return &tradeStoreImpl{db: db}
}

// InsertOrders 批量写入已完结订单，主键冲突的记录忽略。
func (r *tradeStoreImpl) InsertOrders(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	models := make([]*OrderModel, 0, len(orders))
	for _, o := range orders {
		models = append(models, toOrderModel(o))
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models).Error
	if err != nil {
		return fmt.Errorf("failed to insert orders: %w", err)
	}
	return nil
}

// InsertTrades 批量写入成交明细，唯一索引冲突的记录忽略。
func (r *tradeStoreImpl) InsertTrades(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	models := make([]*TradeModel, 0, len(trades))
	for _, t := range trades {
		models = append(models, toTradeModel(t))
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models).Error
	if err != nil {
		return fmt.Errorf("failed to insert trades: %w", err)
	}
	return nil
}
