package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teknowguy/autopilot-backend/pkg/kv"
	"github.com/teknowguy/autopilot-backend/pkg/kv/kvtest"
)

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	factory := func(t *testing.T) kv.Store {
		store, err := New(redisURL)
		if err != nil {
			t.Fatalf("Failed to create Redis store: %v", err)
		}
		store.client.FlushDB(context.Background())
		return store
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestParseOptions(t *testing.T) {
	opt, err := ParseOptions("redis://:secret@localhost:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)

	opt, err = ParseOptions("127.0.0.1:6379/3")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opt.Addr)
	assert.Equal(t, 3, opt.DB)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(context.Canceled))
	assert.True(t, IsConnectionError(errors.New("dial tcp: connection refused")))
	assert.False(t, IsConnectionError(errors.New("WRONGTYPE Operation against a key")))
}
