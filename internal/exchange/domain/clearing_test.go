package domain

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClearingFixture(t *testing.T) (*AssetService, *OrderService, *MatchEngine, *ClearingService) {
	t.Helper()
	assets := NewAssetService()
	orders := NewOrderService(assets)
	match := NewMatchEngine()
	clearing := NewClearingService(assets, orders, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return assets, orders, match, clearing
}

func TestClearingSettlesAtMakerPriceWithRefund(t *testing.T) {
	assets, orders, match, clearing := newClearingFixture(t)
	deposit(assets, 100, AssetUSD, d("10000"))
	deposit(assets, 200, AssetBTC, d("5"))

	// 卖方先挂 2000，买方以 2010 吃单，应按 2000 成交并退还差额
	maker, err := orders.CreateOrder(1, 1000, 10001, 200, DirectionSell, d("2000"), d("1"))
	require.NoError(t, err)
	require.NotNil(t, maker)
	result, err := match.ProcessOrder(1, maker)
	require.NoError(t, err)
	require.NoError(t, clearing.ClearMatchResult(result))

	taker, err := orders.CreateOrder(2, 1001, 20001, 100, DirectionBuy, d("2010"), d("1"))
	require.NoError(t, err)
	require.NotNil(t, taker)
	result, err = match.ProcessOrder(2, taker)
	require.NoError(t, err)
	require.NoError(t, clearing.ClearMatchResult(result))

	assertBalance(t, assets, 100, AssetUSD, "8000", "0")
	assertBalance(t, assets, 100, AssetBTC, "1", "0")
	assertBalance(t, assets, 200, AssetUSD, "2000", "0")
	assertBalance(t, assets, 200, AssetBTC, "4", "0")

	// 双方订单都完结并注销
	assert.Nil(t, orders.GetOrder(10001))
	assert.Nil(t, orders.GetOrder(20001))
}

func TestClearingSellTakerNoRefund(t *testing.T) {
	assets, orders, match, clearing := newClearingFixture(t)
	deposit(assets, 100, AssetUSD, d("10000"))
	deposit(assets, 200, AssetBTC, d("5"))

	// 买方先挂 2000，卖方以 1990 吃单，按 maker 价 2000 全额成交
	maker, err := orders.CreateOrder(1, 1000, 10001, 100, DirectionBuy, d("2000"), d("1"))
	require.NoError(t, err)
	result, err := match.ProcessOrder(1, maker)
	require.NoError(t, err)
	require.NoError(t, clearing.ClearMatchResult(result))

	taker, err := orders.CreateOrder(2, 1001, 20001, 200, DirectionSell, d("1990"), d("1"))
	require.NoError(t, err)
	result, err = match.ProcessOrder(2, taker)
	require.NoError(t, err)
	require.NoError(t, clearing.ClearMatchResult(result))

	assertBalance(t, assets, 100, AssetUSD, "8000", "0")
	assertBalance(t, assets, 100, AssetBTC, "1", "0")
	assertBalance(t, assets, 200, AssetUSD, "2000", "0")
	assertBalance(t, assets, 200, AssetBTC, "4", "0")
}

func TestClearCancelUnfreezesRemainder(t *testing.T) {
	assets, orders, match, clearing := newClearingFixture(t)
	deposit(assets, 100, AssetUSD, d("10000"))

	order, err := orders.CreateOrder(1, 1000, 10001, 100, DirectionBuy, d("2000"), d("2"))
	require.NoError(t, err)
	_, err = match.ProcessOrder(1, order)
	require.NoError(t, err)
	assertBalance(t, assets, 100, AssetUSD, "6000", "4000")

	require.NoError(t, match.Cancel(1001, order))
	require.NoError(t, clearing.ClearCancelOrder(order))

	assertBalance(t, assets, 100, AssetUSD, "10000", "0")
	assert.Nil(t, orders.GetOrder(10001))
	assert.Empty(t, orders.GetUserOrders(100))
}

func TestCreateOrderInsufficientBalance(t *testing.T) {
	assets, orders, _, _ := newClearingFixture(t)
	deposit(assets, 100, AssetUSD, d("1999"))

	order, err := orders.CreateOrder(1, 1000, 10001, 100, DirectionBuy, d("2000"), d("1"))
	require.NoError(t, err)
	assert.Nil(t, order)
	assertBalance(t, assets, 100, AssetUSD, "1999", "0")
}

func TestCreateOrderDuplicateID(t *testing.T) {
	assets, orders, _, _ := newClearingFixture(t)
	deposit(assets, 100, AssetUSD, d("10000"))

	first, err := orders.CreateOrder(1, 1000, 10001, 100, DirectionBuy, d("1000"), d("1"))
	require.NoError(t, err)
	require.NotNil(t, first)
	_, err = orders.CreateOrder(2, 1001, 10001, 100, DirectionBuy, d("1000"), d("1"))
	assert.Error(t, err)
}
