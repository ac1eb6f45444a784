package quota

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCounterStore implements fixed windows with INCR and EXPIRE NX in
// one MULTI block, so the count and the window TTL move together.
type RedisCounterStore struct {
	client redis.UniversalClient
}

func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	resetIn := pttl.Val()
	if resetIn <= 0 {
		resetIn = window
	}
	return incr.Val(), resetIn, nil
}

// NewRedisClient connects and pings. It returns nil when addr is empty.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
