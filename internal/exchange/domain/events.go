package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// EventBase 所有入站事件的公共字段。sequenceId/previousId 由定序器填写，
// 形成单链：事件 N 的 previousId 必须等于事件 N-1 的 sequenceId。
type EventBase struct {
	SequenceID int64 `json:"sequenceId"`
	PreviousID int64 `json:"previousId"`
	// 幂等键，调用方未提供则为空
	UniqueID string `json:"uniqueId,omitempty"`
	// 调用方关联请求与异步结果的引用 id
	RefID     string `json:"refId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Event 入站事件的封闭联合：下单、撤单、转账。
// 新增事件类型必须同时扩展编解码与引擎分发，编译期即可发现遗漏。
type Event interface {
	Base() *EventBase
	name() string
}

// OrderRequestEvent 下单事件
type OrderRequestEvent struct {
	EventBase
	UserID    int64           `json:"userId"`
	Direction Direction       `json:"direction"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (e *OrderRequestEvent) Base() *EventBase { return &e.EventBase }
func (e *OrderRequestEvent) name() string     { return "orderRequest" }

// OrderCancelEvent 撤单事件，refOrderId 必须属于该用户。
type OrderCancelEvent struct {
	EventBase
	UserID     int64 `json:"userId"`
	RefOrderID int64 `json:"refOrderId"`
}

func (e *OrderCancelEvent) Base() *EventBase { return &e.EventBase }
func (e *OrderCancelEvent) name() string     { return "orderCancel" }

// TransferEvent 资产转移事件。Sufficient 为 false 时不检查余额，
// 仅用于负债账户的入金转账。
type TransferEvent struct {
	EventBase
	FromUserID int64           `json:"fromUserId"`
	ToUserID   int64           `json:"toUserId"`
	Asset      AssetKind       `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`
	Sufficient bool            `json:"sufficient"`
}

func (e *TransferEvent) Base() *EventBase { return &e.EventBase }
func (e *TransferEvent) name() string     { return "transfer" }

// SerializeEvent 序列化为 "类型名#json" 帧，类型名用于解码时还原具体类型。
func SerializeEvent(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return append(append([]byte(event.name()), '#'), data...), nil
}

// DeserializeEvent 还原事件，未知类型名返回错误。
func DeserializeEvent(data []byte) (Event, error) {
	name, body, ok := bytes.Cut(data, []byte{'#'})
	if !ok {
		return nil, fmt.Errorf("invalid event frame: missing type tag")
	}
	var event Event
	switch string(name) {
	case "orderRequest":
		event = &OrderRequestEvent{}
	case "orderCancel":
		event = &OrderCancelEvent{}
	case "transfer":
		event = &TransferEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %q", name)
	}
	if err := json.Unmarshal(body, event); err != nil {
		return nil, fmt.Errorf("unmarshal %s event: %w", name, err)
	}
	return event, nil
}
