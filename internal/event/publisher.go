package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/anon-community/pkg/logger"
)

// RedisPublisher 以 JSON 形式 PUBLISH 到频道，供通知、聊天等订阅方消费
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// LogPublisher 没有 Redis 时把事件写进日志
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	logger.Info("follow event",
		zap.String("type", string(e.Type)),
		zap.String("follower_anonymous_id", e.FollowerAnonymousID),
		zap.String("following_anonymous_id", e.FollowingAnonymousID),
		zap.Bool("mutual", e.IsMutualFollow),
		zap.Time("occurred_at", e.OccurredAt),
	)
	return nil
}
