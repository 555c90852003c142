package domain

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// OrderService 活跃订单登记表，按订单 ID 与用户 ID 双索引。
// 新订单先冻结保证金再登记，冻结失败订单不存在。
type OrderService struct {
	assets *AssetService

	// orderID -> *Order
	activeOrders sync.Map
	// userID -> *sync.Map (orderID -> *Order)
	userOrders sync.Map
}

func NewOrderService(assets *AssetService) *OrderService {
	return &OrderService{assets: assets}
}

// CreateOrder 冻结保证金并登记订单。余额不足返回 (nil, nil)；
// 订单 ID 冲突说明定序层已损坏，返回错误。
func (s *OrderService) CreateOrder(sequenceID, ts, orderID, userID int64, direction Direction, price, quantity decimal.Decimal) (*Order, error) {
	switch direction {
	case DirectionBuy:
		// 买单冻结计价资产 价格 x 数量
		if !s.assets.TryFreeze(userID, AssetUSD, price.Mul(quantity)) {
			return nil, nil
		}
	case DirectionSell:
		// 卖单冻结基础资产 数量
		if !s.assets.TryFreeze(userID, AssetBTC, quantity) {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("invalid direction: %s", direction)
	}

	order := &Order{
		ID:               orderID,
		SequenceID:       sequenceID,
		UserID:           userID,
		Direction:        direction,
		Price:            price,
		Quantity:         quantity,
		UnfilledQuantity: quantity,
		Status:           OrderPending,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	if _, loaded := s.activeOrders.LoadOrStore(orderID, order); loaded {
		return nil, fmt.Errorf("duplicate order id: %d", orderID)
	}
	m, _ := s.userOrders.LoadOrStore(userID, &sync.Map{})
	m.(*sync.Map).Store(orderID, order)
	return order, nil
}

// RemoveOrder 从两个索引中删除订单，任一索引缺失即为引擎不一致。
func (s *OrderService) RemoveOrder(orderID int64) error {
	v, ok := s.activeOrders.LoadAndDelete(orderID)
	if !ok {
		return fmt.Errorf("order %d not found in active orders", orderID)
	}
	removed := v.(*Order)
	m, ok := s.userOrders.Load(removed.UserID)
	if !ok {
		return fmt.Errorf("user orders not found for user %d", removed.UserID)
	}
	if _, ok := m.(*sync.Map).LoadAndDelete(orderID); !ok {
		return fmt.Errorf("order %d not found in user %d orders", orderID, removed.UserID)
	}
	return nil
}

// GetOrder 按订单 ID 查询活跃订单，不存在返回 nil。
func (s *OrderService) GetOrder(orderID int64) *Order {
	v, ok := s.activeOrders.Load(orderID)
	if !ok {
		return nil
	}
	return v.(*Order)
}

// GetUserOrders 返回用户的全部活跃订单。
func (s *OrderService) GetUserOrders(userID int64) []*Order {
	m, ok := s.userOrders.Load(userID)
	if !ok {
		return nil
	}
	var orders []*Order
	m.(*sync.Map).Range(func(_, v any) bool {
		orders = append(orders, v.(*Order))
		return true
	})
	return orders
}

// Range 遍历全部活跃订单，供一致性校验使用。
func (s *OrderService) Range(f func(order *Order) bool) {
	s.activeOrders.Range(func(_, v any) bool {
		return f(v.(*Order))
	})
}
