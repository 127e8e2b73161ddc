package redisstore

import (
	"context"
	"fmt"
	"time"

	"price-aggregator/internal/application"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// QuotaLedger keeps each source's daily call budget in a limiter store,
// so the budget survives restarts when the store is Redis.
type QuotaLedger struct {
	limiters map[string]*limiter.Limiter
}

var _ application.QuotaLedger = (*QuotaLedger)(nil)

// NewQuotaLedger builds one daily limiter per source. Sources without a positive
// limit are not tracked and always granted in full.
func NewQuotaLedger(store limiter.Store, perDay map[string]int) *QuotaLedger {
	l := &QuotaLedger{limiters: map[string]*limiter.Limiter{}}
	for source, n := range perDay {
		if n <= 0 {
			continue
		}
		l.limiters[source] = limiter.New(store, limiter.Rate{Period: 24 * time.Hour, Limit: int64(n)})
	}
	return l
}

func NewRedisQuotaStore(client *redis.Client) (limiter.Store, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   "aggregator:quota",
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("quota store: %w", err)
	}
	return store, nil
}

func (l *QuotaLedger) Reserve(ctx context.Context, source string, n int) (int, error) {
	lim, ok := l.limiters[source]
	if !ok || n <= 0 {
		return n, nil
	}
	peek, err := lim.Peek(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("peek %s quota: %w", source, err)
	}
	want := min(int64(n), peek.Remaining)
	granted := 0
	for i := int64(0); i < want; i++ {
		res, err := lim.Get(ctx, source)
		if err != nil {
			return granted, fmt.Errorf("reserve %s quota: %w", source, err)
		}
		if res.Reached {
			break
		}
		granted++
	}
	return granted, nil
}
