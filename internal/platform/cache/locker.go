package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// LockerConfig tunes StockLocker.
type LockerConfig struct {
	// TTL bounds how long a crashed holder can block a key.
	TTL time.Duration
	// RetryEvery and Retries control waiting for a held key.
	RetryEvery time.Duration
	Retries    int
}

// DefaultLockerConfig waits up to roughly two seconds for a busy key.
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{TTL: 30 * time.Second, RetryEvery: 50 * time.Millisecond, Retries: 40}
}

// StockLocker serializes stock events per (tenant, item, site) across processes using Redis.
type StockLocker struct {
	client *redislock.Client
	cfg    LockerConfig
	logger *slog.Logger
}

// NewStockLocker wraps a Redis client.
func NewStockLocker(rdb redis.UniversalClient, cfg LockerConfig, logger *slog.Logger) *StockLocker {
	def := DefaultLockerConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = def.RetryEvery
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StockLocker{client: redislock.New(rdb), cfg: cfg, logger: logger}
}

// Lock obtains every key in order. On failure the keys already held are released and a
// *shared.ConcurrentModificationError is returned when a key stayed busy.
func (l *StockLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		// Release with a fresh context so a cancelled request still frees its keys.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("release stock lock", slog.String("key", held[i].Key()), slog.Any("error", err))
			}
		}
	}
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.cfg.RetryEvery), l.cfg.Retries),
	}
	for _, key := range keys {
		lock, err := l.client.Obtain(ctx, key, l.cfg.TTL, opts)
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, &shared.ConcurrentModificationError{Op: "lock " + key, Err: err}
			}
			return nil, err
		}
		held = append(held, lock)
	}
	return release, nil
}
