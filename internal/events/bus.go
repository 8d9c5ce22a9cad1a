// Package events carries notifications, progress and post changes to
// streaming clients. It uses redis pub/sub when a server is configured and
// reachable, and an in-process hub otherwise.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ChannelNotifications = "autopilot:notifications"
	ChannelProgress      = "autopilot:progress"
	ChannelPosts         = "autopilot:posts"
)

// AllChannels is every channel the streaming endpoints can follow.
var AllChannels = []string{ChannelNotifications, ChannelProgress, ChannelPosts}

type Message struct {
	Channel string
	Payload string
}

type Subscription interface {
	Channel() <-chan Message
	Close() error
}

type Bus struct {
	client *redis.Client
	hub    *memoryHub
	logger *zap.SugaredLogger
}

// NewBus connects to redis at addr. An empty addr, or a server that does not
// answer, selects the in-process hub.
func NewBus(addr string, logger *zap.SugaredLogger) *Bus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if addr == "" {
		return &Bus{hub: newMemoryHub(), logger: logger}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnw("Redis unavailable; using in-memory event bus", "addr", addr, "error", err)
		client.Close()
		return &Bus{hub: newMemoryHub(), logger: logger}
	}

	return &Bus{client: client, logger: logger}
}

// NewMemoryBus returns a bus that never leaves the process.
func NewMemoryBus() *Bus {
	return &Bus{hub: newMemoryHub(), logger: zap.NewNop().Sugar()}
}

func (b *Bus) InMemory() bool {
	return b.client == nil
}

// Publish encodes v as JSON and sends it on channel.
func (b *Bus) Publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("event marshal error: %w", err)
	}

	if b.client == nil {
		b.hub.publish(channel, string(data))
		return nil
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Errorw("Event publish error", "channel", channel, "error", err)
		return fmt.Errorf("event publish error: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channels ...string) Subscription {
	if b.client == nil {
		return b.hub.subscribe(ctx, channels...)
	}
	return newRedisSubscription(ctx, b.client.Subscribe(ctx, channels...))
}

func (b *Bus) Ping(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Ping(ctx).Err()
}

func (b *Bus) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Message
}

func newRedisSubscription(ctx context.Context, pubsub *redis.PubSub) *redisSubscription {
	sub := &redisSubscription{pubsub: pubsub, out: make(chan Message, 100)}
	go func() {
		defer close(sub.out)
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case sub.out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
				default:
				}
			}
		}
	}()
	return sub
}

func (s *redisSubscription) Channel() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
