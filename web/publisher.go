package web

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher forwards events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher publishes each event as JSON on "<prefix>:<event type>".
// Nothing is stored in Redis.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPublisher connects to Redis and checks the connection.
func NewRedisPublisher(addr, password string, db int, prefix string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}, nil
}

func (p *RedisPublisher) channel(eventType string) string {
	return p.prefix + ":" + eventType
}

// Publish sends ev.Data to the event's channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel(ev.Type), data).Err()
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
