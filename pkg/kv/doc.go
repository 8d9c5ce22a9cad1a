// Package kv provides the slot store behind the post snapshot, with in-memory,
// Redis and Postgres implementations selected by configuration.
//
// Backends register themselves from their package init, so callers import the
// ones they want for side effects:
//
//	import (
//		_ "github.com/teknowguy/autopilot-backend/pkg/kv/memory"
//		_ "github.com/teknowguy/autopilot-backend/pkg/kv/redis"
//	)
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendRedis, RedisURL: url})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.MSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")})
//
// The Redis backend falls back to memory when the server cannot be reached at
// startup and Config.FallbackToMemory is set.
package kv
