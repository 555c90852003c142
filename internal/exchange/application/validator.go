package application

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// Validate 全量一致性校验。账本是金融状态，任何一条不变量被破坏都
// 意味着不能再继续处理，校验失败直接进入致命状态。
func (e *TradingEngine) Validate() {
	e.validateAssets()
	e.validateOrders()
	e.validateMatchEngine()
}

// validateAssets 每种资产全局余额和为零；普通账户两项非负，
// 负债账户可用非正、冻结为零。
func (e *TradingEngine) validateAssets() {
	totals := map[domain.AssetKind]decimal.Decimal{
		domain.AssetUSD: decimal.Zero,
		domain.AssetBTC: decimal.Zero,
	}
	e.assets.Range(func(userID int64, kind domain.AssetKind, asset *domain.Asset) bool {
		available, frozen := asset.Balance()
		if userID == domain.DebtUserID {
			e.require(available.Sign() <= 0, "debt account has positive available", "user", userID, "asset", kind)
			e.require(frozen.IsZero(), "debt account has non-zero frozen", "user", userID, "asset", kind)
		} else {
			e.require(available.Sign() >= 0, "account has negative available", "user", userID, "asset", kind)
			e.require(frozen.Sign() >= 0, "account has negative frozen", "user", userID, "asset", kind)
		}
		total, ok := totals[kind]
		if !ok {
			e.require(false, "unknown asset kind", "asset", kind)
			return false
		}
		totals[kind] = total.Add(available).Add(frozen)
		return !e.fatal.Load()
	})
	for kind, total := range totals {
		e.require(total.IsZero(), "asset total is non-zero", "asset", kind, "total", total)
	}
}

// validateOrders 活跃订单未成交量为正且在正确一侧的盘口中；
// 订单隐含的冻结额与账本冻结额逐用户逐资产完全相等。
func (e *TradingEngine) validateOrders() {
	// userID -> asset -> 订单隐含冻结额
	orderFrozen := make(map[int64]map[domain.AssetKind]decimal.Decimal)
	addFrozen := func(userID int64, kind domain.AssetKind, amount decimal.Decimal) {
		m, ok := orderFrozen[userID]
		if !ok {
			m = make(map[domain.AssetKind]decimal.Decimal)
			orderFrozen[userID] = m
		}
		m[kind] = m[kind].Add(amount)
	}
	e.orders.Range(func(order *domain.Order) bool {
		e.require(order.UnfilledQuantity.IsPositive(),
			"active order has non-positive unfilled quantity", "order", order.ID)
		switch order.Direction {
		case domain.DirectionBuy:
			e.require(e.match.BuyBook.Exist(order), "order not in buy book", "order", order.ID)
			addFrozen(order.UserID, domain.AssetUSD, order.Price.Mul(order.UnfilledQuantity))
		case domain.DirectionSell:
			e.require(e.match.SellBook.Exist(order), "order not in sell book", "order", order.ID)
			addFrozen(order.UserID, domain.AssetBTC, order.UnfilledQuantity)
		default:
			e.require(false, "invalid order direction", "order", order.ID)
		}
		return !e.fatal.Load()
	})
	if e.fatal.Load() {
		return
	}
	e.assets.Range(func(userID int64, kind domain.AssetKind, asset *domain.Asset) bool {
		_, frozen := asset.Balance()
		if frozen.IsPositive() {
			m := orderFrozen[userID]
			e.require(m != nil, "ledger frozen balance without matching orders", "user", userID, "asset", kind)
			if m == nil {
				return false
			}
			implied, ok := m[kind]
			e.require(ok, "ledger frozen balance without matching orders", "user", userID, "asset", kind)
			e.require(implied.Equal(frozen), "order frozen does not equal ledger frozen",
				"user", userID, "asset", kind, "orderFrozen", implied, "ledgerFrozen", frozen)
			delete(m, kind)
		}
		return !e.fatal.Load()
	})
	if e.fatal.Load() {
		return
	}
	for userID, m := range orderFrozen {
		for kind, leftover := range m {
			e.require(leftover.IsZero(), "orders imply frozen balance the ledger does not have",
				"user", userID, "asset", kind, "amount", leftover)
		}
	}
}

// validateMatchEngine 盘口订单集合与登记表活跃订单集合必须完全一致。
func (e *TradingEngine) validateMatchEngine() {
	active := make(map[int64]*domain.Order)
	e.orders.Range(func(order *domain.Order) bool {
		active[order.ID] = order
		return true
	})
	countBooked := e.match.BuyBook.Size() + e.match.SellBook.Size()
	e.orders.Range(func(order *domain.Order) bool {
		book := e.match.SellBook
		if order.Direction == domain.DirectionBuy {
			book = e.match.BuyBook
		}
		e.require(book.Exist(order), "active order missing from order book", "order", order.ID)
		return !e.fatal.Load()
	})
	e.require(countBooked == len(active), "order book size does not match active orders",
		"booked", countBooked, "active", len(active))
}

func (e *TradingEngine) require(condition bool, msg string, args ...any) {
	if !condition {
		e.setFatal("validation failed: "+msg, args...)
	}
}
