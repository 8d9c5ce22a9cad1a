package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teknowguy/autopilot-backend/pkg/kv"
	"github.com/teknowguy/autopilot-backend/pkg/kv/kvtest"
)

func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) kv.Store {
		return New()
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestMemoryStoreIsolatesCallerBuffers(t *testing.T) {
	store := New()
	defer store.Close()
	ctx := context.Background()

	value := []byte("original")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	got[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestMemoryStoreClosed(t *testing.T) {
	store := New()
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)
	assert.ErrorIs(t, store.Ping(context.Background()), kv.ErrBackendUnavailable)
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	store, err := kv.NewStoreFromConfig(kv.Config{})
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*Store)
	assert.True(t, ok)
}
