// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/teknowguy/autopilot-backend/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"Overwrite", testOverwrite},
		{"Del", testDel},
		{"Exists", testExists},
		{"MGetMSet", testMGetMSet},
		{"MSetEmpty", testMSetEmpty},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "kvtest:string"
	value := []byte(`{"hello":"world"}`)

	if err := store.Set(ctx, key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(result, value) {
		t.Fatalf("Expected %s, got %s", value, result)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "kvtest:nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "kvtest:overwrite"

	if err := store.Set(ctx, key, []byte("first")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, key, []byte("second")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(result) != "second" {
		t.Fatalf("Expected second, got %s", result)
	}
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()
	keys := []string{"kvtest:del1", "kvtest:del2"}

	for _, key := range keys {
		if err := store.Set(ctx, key, []byte("v")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	deleted, err := store.Del(ctx, append(keys, "kvtest:del-missing")...)
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("Expected 2 deleted keys, got %d", deleted)
	}

	for _, key := range keys {
		if _, err := store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Expected %s to be deleted, got %v", key, err)
		}
	}
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()

	if err := store.Set(ctx, "kvtest:exists", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	count, err := store.Exists(ctx, "kvtest:exists", "kvtest:exists-missing")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 existing key, got %d", count)
	}
}

func testMGetMSet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	pairs := map[string][]byte{
		"kvtest:m1": []byte("one"),
		"kvtest:m2": []byte("two"),
		"kvtest:m3": []byte("three"),
	}

	if err := store.MSet(ctx, pairs); err != nil {
		t.Fatalf("MSet failed: %v", err)
	}

	values, err := store.MGet(ctx, "kvtest:m1", "kvtest:missing", "kvtest:m3")
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(values))
	}
	if string(values[0]) != "one" || string(values[2]) != "three" {
		t.Fatalf("Unexpected values: %q", values)
	}
	if values[1] != nil {
		t.Fatalf("Expected nil for missing key, got %q", values[1])
	}
}

func testMSetEmpty(t *testing.T, store kv.Store) {
	if err := store.MSet(context.Background(), map[string][]byte{}); err != nil {
		t.Fatalf("MSet with no pairs failed: %v", err)
	}
}

func testPing(t *testing.T, store kv.Store) {
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
