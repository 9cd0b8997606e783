package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/redis"
)

func TestNewClient_Disabled(t *testing.T) {
	t.Parallel()

	cfg := redis.Config{}
	assert.False(t, cfg.Enabled())

	client, err := redis.NewClient(context.Background(), cfg)
	require.ErrorIs(t, err, redis.ErrEmptyAddress)
	assert.Nil(t, client)
}

func TestNewClient_ConnectsToRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := redis.NewClient(context.Background(), redis.Config{Address: mr.Addr(), DB: 2})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.DB(2).Exists("k"))
}

func TestNewClient_PingFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := redis.NewClient(context.Background(), redis.Config{Address: addr, DialTimeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
	assert.Nil(t, client)
}

func TestNewClient_CancelledContext(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := redis.NewClient(ctx, redis.Config{Address: mr.Addr()})
	require.Error(t, err)
	assert.Nil(t, client)
}
