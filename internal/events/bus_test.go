package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversToSubscribedChannels(t *testing.T) {
	bus := NewMemoryBus()
	require.True(t, bus.InMemory())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe(ctx, ChannelProgress)
	require.NoError(t, bus.Publish(ctx, ChannelNotifications, map[string]string{"ignored": "yes"}))
	require.NoError(t, bus.Publish(ctx, ChannelProgress, map[string]int{"percent": 10}))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, ChannelProgress, msg.Channel)
		assert.JSONEq(t, `{"percent":10}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected a progress message")
	}

	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected message %v", msg)
	default:
	}
}

func TestMemorySubscriptionClosesWithContext(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(ctx, ChannelPosts)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Channel():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, bus.Publish(context.Background(), ChannelPosts, "after close"))
}

func TestNewBusFallsBackWithoutRedis(t *testing.T) {
	bus := NewBus("", nil)
	assert.True(t, bus.InMemory())
	assert.NoError(t, bus.Ping(context.Background()))
	assert.NoError(t, bus.Close())
}
