// Package redis 提供订单簿快照缓存与结果推送的 Redis 实现。
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

const (
	orderBookKey     = "exchange:orderbook"
	orderBookChannel = "exchange:notify:orderbook"
)

// 仅当快照的 sequenceId 比缓存中的更新时才写入并广播，
// 防止乱序到达的旧快照覆盖新盘口。
var updateOrderBookScript = redis.NewScript(`
local key = KEYS[1]
local channel = KEYS[2]
local seq = tonumber(ARGV[1])
local data = ARGV[2]
local cached = redis.call('GET', key)
if cached then
  local ok, decoded = pcall(cjson.decode, cached)
  if ok and tonumber(decoded.sequenceId) >= seq then
    return 0
  end
end
redis.call('SET', key, data)
redis.call('PUBLISH', channel, data)
return 1
`)

// orderBookRepository 是 domain.OrderBookPublisher 接口的 Redis 实现。
type orderBookRepository struct {
	client redis.UniversalClient
}

func NewOrderBookRepository(client redis.UniversalClient) domain.OrderBookPublisher {
	return &orderBookRepository{client: client}
}

// PublishSnapshot 以 sequenceId 为版本号写入快照并广播给行情消费方。
func (r *orderBookRepository) PublishSnapshot(ctx context.Context, view *domain.OrderBookView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal order book snapshot: %w", err)
	}
	keys := []string{orderBookKey, orderBookChannel}
	if err := updateOrderBookScript.Run(ctx, r.client, keys, view.SequenceID, data).Err(); err != nil {
		return fmt.Errorf("publish order book snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot 读取最近一次发布的订单簿快照，缓存为空返回 nil。
func (r *orderBookRepository) LoadSnapshot(ctx context.Context) (*domain.OrderBookView, error) {
	data, err := r.client.Get(ctx, orderBookKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var view domain.OrderBookView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, err
	}
	return &view, nil
}
