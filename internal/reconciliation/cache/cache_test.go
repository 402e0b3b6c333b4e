package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/circuit"
)

func TestKeyLayout(t *testing.T) {
	batchID := id.BatchID(uuid.MustParse("6f1c2d4e-0a9b-4c8d-9e7f-112233445566"))

	assert.Equal(t, "recon:6f1c2d4e-0a9b-4c8d-9e7f-112233445566:compare:abc", Key(batchID, "compare", "abc"))
	assert.Equal(t, "recon:6f1c2d4e-0a9b-4c8d-9e7f-112233445566:keys", indexKey(batchID))
}

func TestNewDefaultsTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(nil, 0).ttl)
	assert.Equal(t, DefaultTTL, New(nil, -1).ttl)
}

func TestBreakerShortCircuitsUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	breaker := circuit.New("report-cache", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	c := New(client, time.Minute, WithBreaker(breaker))
	ctx := context.Background()
	key := Key(id.NewBatchID(), "compare", "all")

	var dst map[string]any
	_, err := c.Get(ctx, key, &dst)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.True(t, breaker.IsOpen())

	_, err = c.Get(ctx, key, &dst)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, c.Set(ctx, id.NewBatchID(), key, dst), ErrUnavailable)
}
