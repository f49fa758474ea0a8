package eventbus

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroker backs the Bus's optional cross-process fan-out with a
// Redis pub/sub publish, so a second gateway process (or an external
// consumer) subscribed to the same Redis channels observes the same
// event stream this process's in-memory Bus delivers locally.
//
// Grounded on the teacher's datafacade cache client construction
// ("inject a *redis.Client" shape) — the cache's key/TTL scheme is a
// different concern from bus transport, so only the client
// construction and a thin Publish/Ping wrapper are reused here.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker wraps an existing *redis.Client. prefix namespaces
// channel names (e.g. "gateway:") so multiple environments can share
// one Redis instance without cross-talk.
func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, b.prefix+channel, payload).Err()
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
