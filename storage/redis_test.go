package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// 需要真实 Redis：TEST_REDIS_URL=localhost:6379 go test ./storage/
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_URL")
	if addr == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	prefix := "reply_templates_test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		rdb.Del(context.Background(), prefix+"templates", prefix+"globalVariables")
	})

	exerciseStore(t, NewRedisStore(rdb, prefix))
}
