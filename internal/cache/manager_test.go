package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.DefaultTTL = time.Minute

	store, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()
	key := KeyFor(KindAST, "def f():\n    pass\n")

	require.NoError(t, store.SetRaw(ctx, key, []byte(`{"Language":"python"}`), time.Minute))

	raw, err := store.GetRaw(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Language":"python"}`, string(raw))
}

func TestRedisStoreMiss(t *testing.T) {
	_, store := newTestStore(t)
	_, err := store.GetRaw(context.Background(), KeyFor(KindAST, "absent"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStoreDelete(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()
	key := KeyFor(KindAnalysis, "content")

	require.NoError(t, store.SetRaw(ctx, key, []byte("x"), time.Minute))
	require.NoError(t, store.Delete(ctx, key))
	_, err := store.GetRaw(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	key := KeyFor(KindAST, "ttl")

	require.NoError(t, store.SetRaw(ctx, key, []byte("x"), 100*time.Millisecond))
	mr.FastForward(200 * time.Millisecond)

	_, err := store.GetRaw(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStoreUnreachable(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "localhost:1" // nothing listens here
	_, err := NewRedisStore(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisStoreClosedOperations(t *testing.T) {
	_, store := newTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.GetRaw(context.Background(), KeyFor(KindAST, "x"))
	assert.Error(t, err)
	assert.Error(t, store.Ping(context.Background()))
}

func TestCacheWithBackingServesDurableEntries(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		N int `json:"n"`
	}
	decode := func(raw []byte) (any, error) {
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
	encode := func(v any) ([]byte, error) { return json.Marshal(v) }

	key := KeyFor(KindAnalysis, "shared content")
	computes := 0
	compute := func(context.Context) (any, error) {
		computes++
		return &payload{N: 42}, nil
	}

	first := New(nil, zap.NewNop()).WithBacking(store)
	defer first.Close()
	v, err := first.GetOrComputeDecoded(ctx, key, time.Minute, decode, encode, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v.(*payload).N)
	assert.Equal(t, 1, computes)

	// A fresh in-memory cache over the same backing must not
	// recompute.
	second := New(nil, zap.NewNop()).WithBacking(store)
	defer second.Close()
	v, err = second.GetOrComputeDecoded(ctx, key, time.Minute, decode, encode, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v.(*payload).N)
	assert.Equal(t, 1, computes)
}
