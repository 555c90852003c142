package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderSeq int64

func newTestOrder(direction Direction, price, quantity string) *Order {
	orderSeq++
	return &Order{
		ID:               orderSeq,
		SequenceID:       orderSeq,
		UserID:           100 + orderSeq,
		Direction:        direction,
		Price:            d(price),
		Quantity:         d(quantity),
		UnfilledQuantity: d(quantity),
		Status:           OrderPending,
	}
}

func TestMatchAtMakerPriceWithTimePriority(t *testing.T) {
	e := NewMatchEngine()
	s1 := newTestOrder(DirectionSell, "2650", "1")
	s2 := newTestOrder(DirectionSell, "2650", "2")
	s3 := newTestOrder(DirectionSell, "2655", "1")
	for _, maker := range []*Order{s1, s2, s3} {
		result, err := e.ProcessOrder(maker.SequenceID, maker)
		require.NoError(t, err)
		assert.Empty(t, result.Details)
	}

	taker := newTestOrder(DirectionBuy, "2656", "3")
	result, err := e.ProcessOrder(taker.SequenceID, taker)
	require.NoError(t, err)

	// 同价位先到先成交，价格取 maker 价
	require.Len(t, result.Details, 2)
	assert.Equal(t, s1.ID, result.Details[0].Maker.ID)
	assert.True(t, result.Details[0].Price.Equal(d("2650")))
	assert.True(t, result.Details[0].Quantity.Equal(d("1")))
	assert.Equal(t, s2.ID, result.Details[1].Maker.ID)
	assert.True(t, result.Details[1].Quantity.Equal(d("2")))

	assert.Equal(t, OrderFullyFilled, taker.Status)
	assert.Equal(t, OrderFullyFilled, s1.Status)
	assert.Equal(t, OrderFullyFilled, s2.Status)
	assert.Equal(t, OrderPending, s3.Status)
	assert.True(t, e.MarketPrice.Equal(d("2650")))

	// 吃完的 maker 出簿，未触及的留在卖一
	assert.Equal(t, 0, e.BuyBook.Size())
	assert.Equal(t, 1, e.SellBook.Size())
	assert.Equal(t, s3.ID, e.SellBook.First().ID)
}

func TestNoCrossLeavesTakerResting(t *testing.T) {
	e := NewMatchEngine()
	sell := newTestOrder(DirectionSell, "2700", "1")
	_, err := e.ProcessOrder(sell.SequenceID, sell)
	require.NoError(t, err)

	buy := newTestOrder(DirectionBuy, "2690", "2")
	result, err := e.ProcessOrder(buy.SequenceID, buy)
	require.NoError(t, err)

	assert.Empty(t, result.Details)
	assert.Equal(t, OrderPending, buy.Status)
	assert.True(t, e.BuyBook.Exist(buy))
	assert.True(t, e.MarketPrice.IsZero())
}

func TestPartialFillRestsRemainder(t *testing.T) {
	e := NewMatchEngine()
	sell := newTestOrder(DirectionSell, "2650", "1")
	_, err := e.ProcessOrder(sell.SequenceID, sell)
	require.NoError(t, err)

	buy := newTestOrder(DirectionBuy, "2650", "3")
	result, err := e.ProcessOrder(buy.SequenceID, buy)
	require.NoError(t, err)

	require.Len(t, result.Details, 1)
	assert.Equal(t, OrderPartiallyFilled, buy.Status)
	assert.True(t, buy.UnfilledQuantity.Equal(d("2")))
	assert.True(t, e.BuyBook.Exist(buy))
	assert.Equal(t, 0, e.SellBook.Size())
}

func TestCancelRemovesFromBook(t *testing.T) {
	e := NewMatchEngine()
	buy := newTestOrder(DirectionBuy, "2600", "2")
	_, err := e.ProcessOrder(buy.SequenceID, buy)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(1000, buy))
	assert.Equal(t, OrderFullyCancelled, buy.Status)
	assert.False(t, e.BuyBook.Exist(buy))

	// 不在簿中的订单不能再撤
	assert.Error(t, e.Cancel(1001, buy))
}

func TestCancelPartiallyFilledOrder(t *testing.T) {
	e := NewMatchEngine()
	buy := newTestOrder(DirectionBuy, "2650", "3")
	_, err := e.ProcessOrder(buy.SequenceID, buy)
	require.NoError(t, err)
	sell := newTestOrder(DirectionSell, "2650", "1")
	_, err = e.ProcessOrder(sell.SequenceID, sell)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(1000, buy))
	assert.Equal(t, OrderPartiallyCancelled, buy.Status)
	assert.True(t, buy.UnfilledQuantity.Equal(d("2")))
}

func TestSnapshotMergesPriceLevels(t *testing.T) {
	e := NewMatchEngine()
	for _, level := range []struct{ price, qty string }{
		{"2650", "1"}, {"2650", "2"}, {"2655", "0.5"},
	} {
		sell := newTestOrder(DirectionSell, level.price, level.qty)
		_, err := e.ProcessOrder(sell.SequenceID, sell)
		require.NoError(t, err)
	}
	buy := newTestOrder(DirectionBuy, "2600", "1")
	_, err := e.ProcessOrder(buy.SequenceID, buy)
	require.NoError(t, err)

	view := e.Snapshot(10)
	require.Len(t, view.Sell, 2)
	assert.True(t, view.Sell[0].Price.Equal(d("2650")))
	assert.True(t, view.Sell[0].Quantity.Equal(d("3")))
	assert.True(t, view.Sell[1].Price.Equal(d("2655")))
	require.Len(t, view.Buy, 1)
	assert.True(t, view.Buy[0].Price.Equal(d("2600")))
	assert.Equal(t, buy.SequenceID, view.SequenceID)
}

func TestNearbyPricesStayDistinctLevels(t *testing.T) {
	e := NewMatchEngine()
	s1 := newTestOrder(DirectionSell, "2650.00000002", "1")
	s2 := newTestOrder(DirectionSell, "2650.00000001", "1")
	for _, maker := range []*Order{s1, s2} {
		_, err := e.ProcessOrder(maker.SequenceID, maker)
		require.NoError(t, err)
	}

	// 精度内的相邻价格各占一档，后挂的低价排在前面
	view := e.Snapshot(10)
	require.Len(t, view.Sell, 2)
	assert.True(t, view.Sell[0].Price.Equal(d("2650.00000001")))
	assert.True(t, view.Sell[1].Price.Equal(d("2650.00000002")))
	assert.Equal(t, s2.ID, e.SellBook.First().ID)
}

func TestSnapshotDepthLimit(t *testing.T) {
	e := NewMatchEngine()
	for i := 0; i < 5; i++ {
		sell := newTestOrder(DirectionSell, d("2650").Add(decimal.NewFromInt(int64(i))).String(), "1")
		_, err := e.ProcessOrder(sell.SequenceID, sell)
		require.NoError(t, err)
	}
	view := e.Snapshot(3)
	assert.Len(t, view.Sell, 3)
	// 卖侧从低到高
	assert.True(t, view.Sell[0].Price.Equal(d("2650")))
	assert.True(t, view.Sell[2].Price.Equal(d("2652")))
}
