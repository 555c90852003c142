package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchDetail 一笔撮合成交，价格为 maker 价。
type MatchDetail struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Taker    *Order
	Maker    *Order
}

// MatchResult 一次撮合的全部成交，Details 按成交先后排列，
// 下游据此生成确定性的成交编号。
type MatchResult struct {
	TakerOrder *Order
	Details    []MatchDetail
}

// MatchEngine 价格-时间优先撮合引擎。状态只由事件循环变更。
type MatchEngine struct {
	BuyBook     *OrderBook
	SellBook    *OrderBook
	MarketPrice decimal.Decimal

	// 最近处理的定序 id，随快照一起发布
	sequenceID int64
}

func NewMatchEngine() *MatchEngine {
	return &MatchEngine{
		BuyBook:     NewOrderBook(DirectionBuy),
		SellBook:    NewOrderBook(DirectionSell),
		MarketPrice: decimal.Zero,
	}
}

// ProcessOrder 将 taker 订单与对手盘撮合，未吃完的部分挂入己方盘口。
func (e *MatchEngine) ProcessOrder(sequenceID int64, taker *Order) (*MatchResult, error) {
	switch taker.Direction {
	case DirectionBuy:
		return e.processOrder(sequenceID, taker, e.SellBook, e.BuyBook), nil
	case DirectionSell:
		return e.processOrder(sequenceID, taker, e.BuyBook, e.SellBook), nil
	}
	return nil, fmt.Errorf("invalid direction: %s", taker.Direction)
}

func (e *MatchEngine) processOrder(sequenceID int64, taker *Order, makerBook, takerBook *OrderBook) *MatchResult {
	e.sequenceID = sequenceID
	ts := taker.CreatedAt
	result := &MatchResult{TakerOrder: taker}
	takerUnfilled := taker.Quantity
	for {
		maker := makerBook.First()
		if maker == nil {
			break // 没有对手盘
		}
		if taker.Direction == DirectionBuy && taker.Price.LessThan(maker.Price) {
			break // 买价低于卖一
		}
		if taker.Direction == DirectionSell && taker.Price.GreaterThan(maker.Price) {
			break // 卖价高于买一
		}
		// 以 maker 价格成交，市场价随之更新
		e.MarketPrice = maker.Price
		matched := decimal.Min(takerUnfilled, maker.UnfilledQuantity)
		result.Details = append(result.Details, MatchDetail{
			Price:    maker.Price,
			Quantity: matched,
			Taker:    taker,
			Maker:    maker,
		})
		takerUnfilled = takerUnfilled.Sub(matched)
		makerUnfilled := maker.UnfilledQuantity.Sub(matched)
		if makerUnfilled.IsZero() {
			maker.Update(makerUnfilled, OrderFullyFilled, ts)
			makerBook.Remove(maker)
		} else {
			maker.Update(makerUnfilled, OrderPartiallyFilled, ts)
		}
		if takerUnfilled.IsZero() {
			taker.Update(takerUnfilled, OrderFullyFilled, ts)
			break
		}
	}
	if takerUnfilled.IsPositive() {
		status := OrderPartiallyFilled
		if takerUnfilled.Equal(taker.Quantity) {
			status = OrderPending
		}
		taker.Update(takerUnfilled, status, ts)
		takerBook.Add(taker)
	}
	return result
}

// Cancel 从盘口摘除订单。订单不在簿中说明引擎与登记表已不一致。
func (e *MatchEngine) Cancel(ts int64, order *Order) error {
	book := e.SellBook
	if order.Direction == DirectionBuy {
		book = e.BuyBook
	}
	if !book.Remove(order) {
		return fmt.Errorf("order not found in order book: %s", order)
	}
	status := OrderPartiallyCancelled
	if order.UnfilledQuantity.Equal(order.Quantity) {
		status = OrderFullyCancelled
	}
	order.Update(order.UnfilledQuantity, status, ts)
	return nil
}

// OrderBookView 深度快照，消费方仅在 sequenceId 更新时应用。
type OrderBookView struct {
	SequenceID int64                `json:"sequenceId"`
	Price      decimal.Decimal      `json:"price"`
	Buy        []OrderBookLevelView `json:"buy"`
	Sell       []OrderBookLevelView `json:"sell"`
}

// Snapshot 聚合买卖两侧前 maxDepth 档。
func (e *MatchEngine) Snapshot(maxDepth int) *OrderBookView {
	return &OrderBookView{
		SequenceID: e.sequenceID,
		Price:      e.MarketPrice,
		Buy:        e.BuyBook.TopLevels(maxDepth),
		Sell:       e.SellBook.TopLevels(maxDepth),
	}
}
