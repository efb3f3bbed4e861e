// Package ranking implements ports.RankingSource over a Redis sorted set,
// grounded on the market engine's Redis cache adapter — a thin client
// wrapper with one responsibility, read-through for a set the Batch
// Driver consults but never rebuilds itself.
package ranking

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis reads a pre-aggregated wallet-ranking sorted set: member is the
// wallet address, score is whatever the upstream ranking job used
// (volume, PnL, activity — the Batch Driver doesn't care).
type Redis struct {
	rdb *redis.Client
	key string
}

// New builds a Redis ranking source over addr, reading from key.
func New(addr, key string) *Redis {
	return &Redis{rdb: redis.NewClient(&redis.Options{Addr: addr}), key: key}
}

// TopWallets returns the top n wallets by descending score.
func (r *Redis) TopWallets(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	wallets, err := r.rdb.ZRevRange(ctx, r.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking.Redis.TopWallets: %w", err)
	}
	return wallets, nil
}

// SetScore records or updates wallet's ranking score, used by whatever
// upstream job maintains the ranking set.
func (r *Redis) SetScore(ctx context.Context, wallet string, score float64) error {
	if err := r.rdb.ZAdd(ctx, r.key, redis.Z{Score: score, Member: wallet}).Err(); err != nil {
		return fmt.Errorf("ranking.Redis.SetScore: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (r *Redis) Close() error { return r.rdb.Close() }
