package application

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// BalanceView 某资产的余额快照。
type BalanceView struct {
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
}

// QueryService 只读查询面：余额与活跃订单。与事件循环并发执行，
// 读到的可能是略旧的快照，但不会是撕裂的记录。
type QueryService struct {
	assets *domain.AssetService
	orders *domain.OrderService
}

func NewQueryService(assets *domain.AssetService, orders *domain.OrderService) *QueryService {
	return &QueryService{assets: assets, orders: orders}
}

// GetAssets 用户全部余额。
func (q *QueryService) GetAssets(userID int64) map[domain.AssetKind]BalanceView {
	result := make(map[domain.AssetKind]BalanceView)
	for kind, asset := range q.assets.GetAssets(userID) {
		available, frozen := asset.Balance()
		result[kind] = BalanceView{Available: available, Frozen: frozen}
	}
	return result
}

// GetOpenOrders 用户活跃订单的一致性副本。
func (q *QueryService) GetOpenOrders(userID int64) []domain.Order {
	live := q.orders.GetUserOrders(userID)
	orders := make([]domain.Order, 0, len(live))
	for _, o := range live {
		orders = append(orders, o.Snapshot())
	}
	return orders
}

// GetOrder 按 id 查询订单，归属不符视为不存在。
func (q *QueryService) GetOrder(userID, orderID int64) (domain.Order, bool) {
	o := q.orders.GetOrder(orderID)
	if o == nil || o.UserID != userID {
		return domain.Order{}, false
	}
	return o.Snapshot(), true
}
