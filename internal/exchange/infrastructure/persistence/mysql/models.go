package mysql

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// EventModel 事件日志表映射，sequence_id 唯一保证链条无重复。
type EventModel struct {
	SequenceID int64  `gorm:"column:sequence_id;primaryKey;autoIncrement:false"`
	PreviousID int64  `gorm:"column:previous_id;not null"`
	Data       []byte `gorm:"column:data;type:blob;not null"`
	CreatedAt  int64  `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// UniqueEventModel 幂等键表映射，unique_id 主键拦截重复定序。
type UniqueEventModel struct {
	UniqueID   string `gorm:"column:unique_id;type:varchar(64);primaryKey"`
	SequenceID int64  `gorm:"column:sequence_id;not null"`
	CreatedAt  int64  `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (UniqueEventModel) TableName() string {
	return "unique_events"
}

// OrderModel 已完结订单表映射。
type OrderModel struct {
	ID               int64           `gorm:"column:id;primaryKey;autoIncrement:false"`
	SequenceID       int64           `gorm:"column:sequence_id;not null"`
	UserID           int64           `gorm:"column:user_id;index;not null"`
	Direction        string          `gorm:"column:direction;type:varchar(8);not null"`
	Status           string          `gorm:"column:status;type:varchar(20);not null"`
	Price            decimal.Decimal `gorm:"column:price;type:decimal(36,18);not null"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:decimal(36,18);not null"`
	UnfilledQuantity decimal.Decimal `gorm:"column:unfilled_quantity;type:decimal(36,18);not null"`
	CreatedAt        int64           `gorm:"column:created_at;not null"`
	UpdatedAt        int64           `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (OrderModel) TableName() string {
	return "orders"
}

// TradeModel 成交明细表映射，每笔撮合落两条（taker 和 maker 各一条视角）。
type TradeModel struct {
	ID             uint            `gorm:"primaryKey;autoIncrement"`
	SequenceID     int64           `gorm:"column:sequence_id;index;not null"`
	OrderID        int64           `gorm:"column:order_id;uniqueIndex:idx_order_counter;not null"`
	CounterOrderID int64           `gorm:"column:counter_order_id;uniqueIndex:idx_order_counter;not null"`
	UserID         int64           `gorm:"column:user_id;index;not null"`
	CounterUserID  int64           `gorm:"column:counter_user_id;not null"`
	Direction      string          `gorm:"column:direction;type:varchar(8);not null"`
	Type           string          `gorm:"column:type;type:varchar(8);not null"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(36,18);not null"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:decimal(36,18);not null"`
	CreatedAt      int64           `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (TradeModel) TableName() string {
	return "trades"
}

func toEventModel(e *domain.StoredEvent) *EventModel {
	return &EventModel{
		SequenceID: e.SequenceID,
		PreviousID: e.PreviousID,
		Data:       e.Data,
		CreatedAt:  e.CreatedAt,
	}
}

func toStoredEvent(m *EventModel) *domain.StoredEvent {
	return &domain.StoredEvent{
		SequenceID: m.SequenceID,
		PreviousID: m.PreviousID,
		Data:       m.Data,
		CreatedAt:  m.CreatedAt,
	}
}

func toOrderModel(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:               o.ID,
		SequenceID:       o.SequenceID,
		UserID:           o.UserID,
		Direction:        string(o.Direction),
		Status:           string(o.Status),
		Price:            o.Price,
		Quantity:         o.Quantity,
		UnfilledQuantity: o.UnfilledQuantity,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toTradeModel(t *domain.TradeRecord) *TradeModel {
	return &TradeModel{
		SequenceID:     t.SequenceID,
		OrderID:        t.OrderID,
		CounterOrderID: t.CounterOrderID,
		UserID:         t.UserID,
		CounterUserID:  t.CounterUserID,
		Direction:      string(t.Direction),
		Type:           string(t.Type),
		Price:          t.Price,
		Quantity:       t.Quantity,
		CreatedAt:      t.CreatedAt,
	}
}
