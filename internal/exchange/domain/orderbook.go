package domain

import (
	"container/list"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/algorithm"
)

// OrderLevel 同一价格档位下的订单队列，先到先出保证时间优先。
// 单写者按定序顺序入队，因此队列顺序即 sequenceId 升序。
type OrderLevel struct {
	Price  decimal.Decimal
	Orders *list.List // 存储 *Order
}

func NewOrderLevel(price decimal.Decimal) *OrderLevel {
	return &OrderLevel{Price: price, Orders: list.New()}
}

// OrderBook 单侧订单簿。买盘以 -price 为键（降序），卖盘以 price 为键（升序），
// 最优价永远在跳表头部。
type OrderBook struct {
	Direction Direction
	levels    *algorithm.SkipList[float64, *OrderLevel]
	size      int
}

func NewOrderBook(direction Direction) *OrderBook {
	return &OrderBook{
		Direction: direction,
		levels:    algorithm.NewSkipList[float64, *OrderLevel](),
	}
}

// key 把价格映射为跳表键。float64 约有 15 位有效数字，超出精度的两个
// 不同价格会落到同一档位，按到达顺序排队；成交仍按各 maker 的精确
// decimal 价格清算，所以这只要求报价精度不超过 15 位有效数字。
func (b *OrderBook) key(price decimal.Decimal) float64 {
	f := price.InexactFloat64()
	if b.Direction == DirectionBuy {
		return -f
	}
	return f
}

// First 返回最优价档位中最早的订单，空盘返回 nil。
func (b *OrderBook) First() *Order {
	it := b.levels.Iterator()
	_, level, ok := it.Next()
	if !ok {
		return nil
	}
	front := level.Orders.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Order)
}

// Add 挂入订单。
func (b *OrderBook) Add(order *Order) {
	k := b.key(order.Price)
	level, ok := b.levels.Search(k)
	if !ok {
		level = NewOrderLevel(order.Price)
		b.levels.Insert(k, level)
	}
	level.Orders.PushBack(order)
	b.size++
}

// Remove 摘除订单，订单不在簿中返回 false。
func (b *OrderBook) Remove(order *Order) bool {
	k := b.key(order.Price)
	level, ok := b.levels.Search(k)
	if !ok {
		return false
	}
	for el := level.Orders.Front(); el != nil; el = el.Next() {
		if el.Value.(*Order).ID == order.ID {
			level.Orders.Remove(el)
			if level.Orders.Len() == 0 {
				b.levels.Delete(k)
			}
			b.size--
			return true
		}
	}
	return false
}

// Exist 订单是否在簿中。
func (b *OrderBook) Exist(order *Order) bool {
	level, ok := b.levels.Search(b.key(order.Price))
	if !ok {
		return false
	}
	for el := level.Orders.Front(); el != nil; el = el.Next() {
		if el.Value.(*Order).ID == order.ID {
			return true
		}
	}
	return false
}

// Size 簿中订单数。
func (b *OrderBook) Size() int {
	return b.size
}

// OrderBookLevelView 聚合后的价格档位。
type OrderBookLevelView struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// TopLevels 返回前 maxDepth 个价格档位，同价订单合并为一档，数量为未成交量之和。
func (b *OrderBook) TopLevels(maxDepth int) []OrderBookLevelView {
	items := make([]OrderBookLevelView, 0, maxDepth)
	it := b.levels.Iterator()
	for len(items) < maxDepth {
		_, level, ok := it.Next()
		if !ok {
			break
		}
		total := decimal.Zero
		for el := level.Orders.Front(); el != nil; el = el.Next() {
			total = total.Add(el.Value.(*Order).UnfilledQuantity)
		}
		items = append(items, OrderBookLevelView{Price: level.Price, Quantity: total})
	}
	return items
}
