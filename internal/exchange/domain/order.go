package domain

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Direction 买卖方向
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderStatus 订单状态。完全成交与两种取消为终态。
type OrderStatus string

const (
	OrderPending            OrderStatus = "PENDING"
	OrderPartiallyFilled    OrderStatus = "PARTIAL_FILLED"
	OrderFullyFilled        OrderStatus = "FULLY_FILLED"
	OrderPartiallyCancelled OrderStatus = "PARTIAL_CANCELLED"
	OrderFullyCancelled     OrderStatus = "FULLY_CANCELLED"
)

// IsFinal 是否为终态。
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderFullyFilled, OrderPartiallyCancelled, OrderFullyCancelled:
		return true
	}
	return false
}

// Order 订单。活跃期间 0 < UnfilledQuantity <= Quantity。
// 可变字段只由事件循环变更；version 在变更期间为奇数，
// 并发读取方通过 Snapshot 获取一致副本。
type Order struct {
	ID         int64           `json:"id"`
	SequenceID int64           `json:"sequenceId"`
	UserID     int64           `json:"userId"`
	Direction  Direction       `json:"direction"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`

	UnfilledQuantity decimal.Decimal `json:"unfilledQuantity"`
	Status           OrderStatus     `json:"status"`
	CreatedAt        int64           `json:"createdAt"`
	UpdatedAt        int64           `json:"updatedAt"`

	mu      sync.Mutex
	version atomic.Uint64
}

// Update 变更订单的可变字段。
func (o *Order) Update(unfilled decimal.Decimal, status OrderStatus, updatedAt int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.version.Add(1) // 奇数：写入进行中
	o.UnfilledQuantity = unfilled
	o.Status = status
	o.UpdatedAt = updatedAt
	o.version.Add(1)
}

const snapshotRetries = 5

// Snapshot 返回订单的一致性副本。乐观读取有限次后退化为短锁，
// 不会在竞争下无限自旋。
func (o *Order) Snapshot() Order {
	for i := 0; i < snapshotRetries; i++ {
		v := o.version.Load()
		if v&1 == 1 {
			continue
		}
		c := o.copyFields()
		if o.version.Load() == v {
			return c
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.copyFields()
}

func (o *Order) copyFields() Order {
	return Order{
		ID:               o.ID,
		SequenceID:       o.SequenceID,
		UserID:           o.UserID,
		Direction:        o.Direction,
		Price:            o.Price,
		Quantity:         o.Quantity,
		UnfilledQuantity: o.UnfilledQuantity,
		Status:           o.Status,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("Order[id=%d seq=%d user=%d %s %s x %s unfilled=%s status=%s]",
		o.ID, o.SequenceID, o.UserID, o.Direction, o.Price, o.Quantity, o.UnfilledQuantity, o.Status)
}
