package domain

import "github.com/shopspring/decimal"

// TradeType 成交记录视角：taker 侧或 maker 侧。
type TradeType string

const (
	TradeTaker TradeType = "TAKER"
	TradeMaker TradeType = "MAKER"
)

// TradeRecord 一笔成交在某一方视角下的不可变记录，每次撮合生成
// taker/maker 各一条。全序为 (OrderID, CounterOrderID) 字典序。
type TradeRecord struct {
	SequenceID     int64           `json:"sequenceId"`
	OrderID        int64           `json:"orderId"`
	CounterOrderID int64           `json:"counterOrderId"`
	UserID         int64           `json:"userId"`
	CounterUserID  int64           `json:"counterUserId"`
	Direction      Direction       `json:"direction"`
	Type           TradeType       `json:"type"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	CreatedAt      int64           `json:"createdAt"`
}

// Less 成交记录的全序比较。
func (t *TradeRecord) Less(other *TradeRecord) bool {
	if t.OrderID != other.OrderID {
		return t.OrderID < other.OrderID
	}
	return t.CounterOrderID < other.CounterOrderID
}

// Tick 行情成交点，供下游聚合 K 线。
type Tick struct {
	SequenceID    int64           `json:"sequenceId"`
	TakerUserID   int64           `json:"takerUserId"`
	MakerUserID   int64           `json:"makerUserId"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	TakerIsBuying bool            `json:"takerDirection"`
	CreatedAt     int64           `json:"createdAt"`
}

// TickMessage 单个事件产生的一组成交点。
type TickMessage struct {
	SequenceID int64   `json:"sequenceId"`
	Ticks      []*Tick `json:"ticks"`
}

// Notification 面向用户的异步通知。
type Notification struct {
	Type      string `json:"type"`
	UserID    int64  `json:"userId"`
	Data      any    `json:"data"`
	CreatedAt int64  `json:"createdAt"`
}

// APIResult 通过 refId 关联回调用方的处理结果。
type APIResult struct {
	RefID     string       `json:"refId"`
	Order     *Order       `json:"order,omitempty"`
	Error     *ResultError `json:"error,omitempty"`
	CreatedAt int64        `json:"createdAt"`
}

// ResultError 结构化的拒绝原因。
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OrderSuccessResult 处理成功的结果。
func OrderSuccessResult(refID string, order *Order, ts int64) *APIResult {
	return &APIResult{RefID: refID, Order: order, CreatedAt: ts}
}

// OrderFailedResult 校验拒绝的结果。
func OrderFailedResult(refID string, code, message string, ts int64) *APIResult {
	return &APIResult{RefID: refID, Error: &ResultError{Code: code, Message: message}, CreatedAt: ts}
}
