package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

const (
	notificationChannel = "exchange:notify:user"
	apiResultChannel    = "exchange:notify:api-result"
)

// resultPublisher 是 domain.ResultPublisher 接口的 Redis 发布订阅实现。
// 通知是尽力投递的推送，接入层掉线错过的消息不补发。
type resultPublisher struct {
	client redis.UniversalClient
}

func NewResultPublisher(client redis.UniversalClient) domain.ResultPublisher {
	return &resultPublisher{client: client}
}

// PublishNotification 向用户推送通道广播一条通知。
func (p *resultPublisher) PublishNotification(ctx context.Context, msg *domain.Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, notificationChannel, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// PublishAPIResult 广播一条带 refId 的请求结果，由接入层按 refId 唤醒等待中的请求。
func (p *resultPublisher) PublishAPIResult(ctx context.Context, msg *domain.APIResult) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal api result: %w", err)
	}
	if err := p.client.Publish(ctx, apiResultChannel, data).Err(); err != nil {
		return fmt.Errorf("publish api result: %w", err)
	}
	return nil
}
