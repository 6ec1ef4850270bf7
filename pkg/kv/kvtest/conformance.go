// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leafsii/dsc-ledger/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
		{"DelExists", testDelExists},
		{"Expiry", testExpiry},
		{"IncrBy", testIncrBy},
		{"Lists", testLists},
		{"LTrim", testLTrim},
		{"WrongType", testWrongType},
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
	key := "test:setget"

	require.NoError(t, store.Set(ctx, key, []byte("v1")))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, store.Set(ctx, key, []byte("v2")))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:missing")
	assert.True(t, errors.Is(err, kv.ErrNotFound), "expected ErrNotFound, got %v", err)
}

func testDelExists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:a", []byte("1")))
	require.NoError(t, store.Set(ctx, "test:b", []byte("2")))

	n, err := store.Exists(ctx, "test:a", "test:b", "test:c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.Del(ctx, "test:a", "test:c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Exists(ctx, "test:a")
	require.NoError(t, err)
	assert.Zero(t, n)

	store.Del(ctx, "test:b")
}

func testExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:expiry"

	require.NoError(t, store.Set(ctx, key, []byte("x"), 50*time.Millisecond))
	_, err := store.Get(ctx, key)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, key)
		return errors.Is(err, kv.ErrNotFound)
	}, 2*time.Second, 20*time.Millisecond)
}

func testIncrBy(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:counter"
	store.Del(ctx, key)

	v, err := store.IncrBy(ctx, key, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = store.IncrBy(ctx, key, -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	raw, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "3", string(raw))

	store.Del(ctx, key)
}

func testLists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:list"
	store.Del(ctx, key)

	empty, err := store.LRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := store.RPush(ctx, key, []byte("a"), []byte("b"), []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = store.RPush(ctx, key, []byte("d"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	all, err := store.LRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}, all)

	tail, err := store.LRange(ctx, key, -2, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("c"), []byte("d")}, tail)

	clamped, err := store.LRange(ctx, key, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("c"), []byte("d")}, clamped)

	none, err := store.LRange(ctx, key, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, none)

	length, err := store.LLen(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), length)

	store.Del(ctx, key)
}

func testLTrim(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:ltrim"
	store.Del(ctx, key)

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		_, err := store.RPush(ctx, key, []byte(v))
		require.NoError(t, err)
	}

	require.NoError(t, store.LTrim(ctx, key, -3, -1))
	kept, err := store.LRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("3"), []byte("4"), []byte("5")}, kept)

	store.Del(ctx, key)
}

func testWrongType(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:wrongtype"
	store.Del(ctx, key)

	_, err := store.RPush(ctx, key, []byte("a"))
	require.NoError(t, err)

	_, err = store.Get(ctx, key)
	assert.True(t, errors.Is(err, kv.ErrWrongType), "expected ErrWrongType, got %v", err)

	store.Del(ctx, key)
}

func testPing(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
