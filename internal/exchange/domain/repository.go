package domain

import "context"

// StoredEvent 持久化事件日志中的一条记录，data 为类型标记帧。
type StoredEvent struct {
	SequenceID int64
	PreviousID int64
	Data       []byte
	CreatedAt  int64
}

// UniqueEvent 幂等记录，同一 uniqueId 至多定序一次。
type UniqueEvent struct {
	UniqueID   string
	SequenceID int64
	CreatedAt  int64
}

// EventStore 追加型事件日志与幂等存储。
// AppendBatch 必须原子写入整批事件与幂等记录。
type EventStore interface {
	AppendBatch(ctx context.Context, events []*StoredEvent, uniques []*UniqueEvent) error
	// LoadEventsAfter 返回 sequenceId 大于给定值的全部事件，按 sequenceId 升序。
	LoadEventsAfter(ctx context.Context, sequenceID int64) ([]*StoredEvent, error)
	// MaxSequenceID 返回最大已持久化的 sequenceId 及其时间戳，空日志返回 (0, 0)。
	MaxSequenceID(ctx context.Context) (sequenceID int64, createdAt int64, err error)
	HasUnique(ctx context.Context, uniqueID string) (bool, error)
}

// TradeStore 已完结订单与成交明细的批量落库，重复写入须被忽略。
type TradeStore interface {
	InsertOrders(ctx context.Context, orders []*Order) error
	InsertTrades(ctx context.Context, trades []*TradeRecord) error
}

// EventProducer 向下游转发已定序事件。
type EventProducer interface {
	SendEvents(ctx context.Context, events []Event) error
}

// TickProducer 发布行情成交流。
type TickProducer interface {
	SendTicks(ctx context.Context, messages []*TickMessage) error
}

// ResultPublisher 发布用户通知与请求结果。
type ResultPublisher interface {
	PublishNotification(ctx context.Context, msg *Notification) error
	PublishAPIResult(ctx context.Context, msg *APIResult) error
}

// OrderBookPublisher 发布订单簿快照，消费方仅应用更新的 sequenceId。
type OrderBookPublisher interface {
	PublishSnapshot(ctx context.Context, view *OrderBookView) error
}
