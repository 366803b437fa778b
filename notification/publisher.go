package notification

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes stored notifications to per-user Redis channels so
// connected clients can render them without polling. A nil client disables
// publishing without branching at every call site.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish sends the payload to the recipient's channel.
func (p *RedisPublisher) Publish(ctx context.Context, recipientID string, payload []byte) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	channel := fmt.Sprintf("notifications:user:%s", recipientID)
	return p.rdb.Publish(ctx, channel, payload).Err()
}
