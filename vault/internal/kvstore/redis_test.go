package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := setupTestRedis(t)
	runStoreSuite(t, NewRedisStore(client, "cardvault:"))
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, "cardvault:")

	require.NoError(t, store.Set(context.Background(), KeyRollbackState, `{"state":"normal"}`))

	assert.True(t, mr.Exists("cardvault:"+KeyRollbackState))
	assert.False(t, mr.Exists(KeyRollbackState))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?\[x\]:`, escapeGlob("a*b?[x]:"))
	assert.Equal(t, "security-cache:", escapeGlob(PrefixSecurityCache))
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewRedisStore(client, "")
	mr.Close()

	_, err = store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0", 4)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, 4, client.Options().PoolSize)

	_, err = DialRedis(context.Background(), "not a url", 0)
	assert.Error(t, err)
}
