package domain

import (
	"fmt"
	"log/slog"
)

// ClearingService 将撮合与取消结果转化为账本转移，并清理已完结订单。
type ClearingService struct {
	assets *AssetService
	orders *OrderService
	logger *slog.Logger
}

func NewClearingService(assets *AssetService, orders *OrderService, logger *slog.Logger) *ClearingService {
	return &ClearingService{
		assets: assets,
		orders: orders,
		logger: logger.With("module", "clearing"),
	}
}

// ClearMatchResult 按成交明细逐笔清算。
// 买方 taker 以低于限价成交时，先退还多冻结的计价资产差额。
func (c *ClearingService) ClearMatchResult(result *MatchResult) error {
	taker := result.TakerOrder
	switch taker.Direction {
	case DirectionBuy:
		for _, detail := range result.Details {
			maker := detail.Maker
			matched := detail.Quantity
			if maker.Price.LessThan(taker.Price) {
				// 实际买入价低于报价，退回未用到的 USD
				refund := taker.Price.Sub(maker.Price).Mul(matched)
				if err := c.assets.Unfreeze(taker.UserID, AssetUSD, refund); err != nil {
					return err
				}
				c.logger.Debug("refund unused quote to taker",
					"user", taker.UserID, "amount", refund)
			}
			// 买方冻结的 USD 转入卖方，卖方冻结的 BTC 转入买方
			if err := c.assets.Transfer(FrozenToAvailable, taker.UserID, maker.UserID,
				AssetUSD, maker.Price.Mul(matched)); err != nil {
				return err
			}
			if err := c.assets.Transfer(FrozenToAvailable, maker.UserID, taker.UserID,
				AssetBTC, matched); err != nil {
				return err
			}
			if maker.UnfilledQuantity.IsZero() {
				if err := c.orders.RemoveOrder(maker.ID); err != nil {
					return err
				}
			}
		}
	case DirectionSell:
		for _, detail := range result.Details {
			maker := detail.Maker
			matched := detail.Quantity
			// 卖方冻结的 BTC 转入买方，买方冻结的 USD 转入卖方
			if err := c.assets.Transfer(FrozenToAvailable, taker.UserID, maker.UserID,
				AssetBTC, matched); err != nil {
				return err
			}
			if err := c.assets.Transfer(FrozenToAvailable, maker.UserID, taker.UserID,
				AssetUSD, maker.Price.Mul(matched)); err != nil {
				return err
			}
			if maker.UnfilledQuantity.IsZero() {
				if err := c.orders.RemoveOrder(maker.ID); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("invalid direction: %s", taker.Direction)
	}
	if taker.UnfilledQuantity.IsZero() {
		return c.orders.RemoveOrder(taker.ID)
	}
	return nil
}

// ClearCancelOrder 解冻剩余保证金并注销订单。
func (c *ClearingService) ClearCancelOrder(order *Order) error {
	switch order.Direction {
	case DirectionBuy:
		// 解冻 USD = 价格 x 未成交数量
		if err := c.assets.Unfreeze(order.UserID, AssetUSD, order.Price.Mul(order.UnfilledQuantity)); err != nil {
			return err
		}
	case DirectionSell:
		// 解冻 BTC = 未成交数量
		if err := c.assets.Unfreeze(order.UserID, AssetBTC, order.UnfilledQuantity); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid direction: %s", order.Direction)
	}
	return c.orders.RemoveOrder(order.ID)
}
