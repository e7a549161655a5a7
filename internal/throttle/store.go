// Package throttle keeps sliding-window request logs in PostgreSQL so every
// server instance shares one budget per caller.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/common"
	"gorm.io/gorm"

	"github.com/princeprakhar/movie-watchlist/internal/models"
)

// Clock returns the current time. Tests swap it for a fixed one.
type Clock func() time.Time

// incrementSQL drops hits older than the window and appends the new ones
// when they fit the budget. Refused requests are not logged. The row lock
// taken by ON CONFLICT serializes concurrent callers of one bucket.
const incrementSQL = `
INSERT INTO throttle_counters (bucket_key, hits, blocked, expires_at)
VALUES (
	@key,
	CASE WHEN CAST(@count AS bigint) <= CAST(@limit AS bigint)
		THEN array_fill(CAST(@stamp AS bigint), ARRAY[CAST(@count AS int)])
		ELSE '{}'::bigint[] END,
	CAST(@count AS bigint) > CAST(@limit AS bigint),
	@expires)
ON CONFLICT (bucket_key) DO UPDATE SET
	hits = ARRAY(
			SELECT u.h FROM unnest(throttle_counters.hits) AS u(h)
			WHERE u.h > CAST(@since AS bigint) ORDER BY u.h)
		|| CASE WHEN (
				SELECT count(*) FROM unnest(throttle_counters.hits) AS u(h)
				WHERE u.h > CAST(@since AS bigint)) + CAST(@count AS bigint) <= CAST(@limit AS bigint)
			THEN array_fill(CAST(@stamp AS bigint), ARRAY[CAST(@count AS int)])
			ELSE '{}'::bigint[] END,
	blocked = (
			SELECT count(*) FROM unnest(throttle_counters.hits) AS u(h)
			WHERE u.h > CAST(@since AS bigint)) + CAST(@count AS bigint) > CAST(@limit AS bigint),
	expires_at = CASE WHEN (
			SELECT count(*) FROM unnest(throttle_counters.hits) AS u(h)
			WHERE u.h > CAST(@since AS bigint)) + CAST(@count AS bigint) <= CAST(@limit AS bigint)
		THEN EXCLUDED.expires_at
		ELSE throttle_counters.expires_at END
RETURNING
	cardinality(hits) AS used,
	(SELECT min(u.h) FROM unnest(hits) AS u(h)) AS oldest,
	blocked`

const peekSQL = `
SELECT count(u.h) AS used, min(u.h) AS oldest, false AS blocked
FROM throttle_counters
LEFT JOIN LATERAL unnest(throttle_counters.hits) AS u(h) ON u.h > CAST(@since AS bigint)
WHERE bucket_key = @key`

// bucketState is what both statements report about a bucket.
type bucketState struct {
	Used    int64
	Oldest  *int64
	Blocked bool
}

// context converts the state into the limiter's view. The window resets when
// the oldest logged hit leaves it.
func (b bucketState) context(now time.Time, rate limiter.Rate, count int64) limiter.Context {
	used := b.Used
	if b.Blocked {
		used += count
	}
	reset := now.Add(rate.Period)
	if b.Oldest != nil {
		reset = time.UnixMicro(*b.Oldest).Add(rate.Period)
	}
	return common.GetContextFromState(now, rate, reset, used)
}

// Store is a limiter.Store backed by the throttle_counters table.
type Store struct {
	db    *gorm.DB
	clock Clock
}

var _ limiter.Store = (*Store)(nil)

func NewStore(db *gorm.DB, clock Clock) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: db, clock: clock}
}

// Now is the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.clock()
}

func (s *Store) Get(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return s.Increment(ctx, key, 1, rate)
}

// Increment logs count requests in one statement unless they would exceed
// the budget of the trailing window.
func (s *Store) Increment(ctx context.Context, key string, count int64, rate limiter.Rate) (limiter.Context, error) {
	now := s.clock().UTC()

	var state bucketState
	err := s.db.WithContext(ctx).Raw(incrementSQL, map[string]interface{}{
		"key":     key,
		"count":   count,
		"limit":   rate.Limit,
		"stamp":   now.UnixMicro(),
		"since":   now.Add(-rate.Period).UnixMicro(),
		"expires": now.Add(rate.Period),
	}).Scan(&state).Error
	if err != nil {
		return limiter.Context{}, fmt.Errorf("increment throttle bucket %q: %w", key, err)
	}

	return state.context(now, rate, count), nil
}

func (s *Store) Peek(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	now := s.clock().UTC()

	var state bucketState
	err := s.db.WithContext(ctx).Raw(peekSQL, map[string]interface{}{
		"key":   key,
		"since": now.Add(-rate.Period).UnixMicro(),
	}).Scan(&state).Error
	if err != nil {
		return limiter.Context{}, fmt.Errorf("peek throttle bucket %q: %w", key, err)
	}

	return state.context(now, rate, 0), nil
}

func (s *Store) Reset(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	now := s.clock().UTC()

	err := s.db.WithContext(ctx).
		Where("bucket_key = ?", key).
		Delete(&models.ThrottleCounter{}).Error
	if err != nil {
		return limiter.Context{}, fmt.Errorf("reset throttle bucket %q: %w", key, err)
	}

	return common.GetContextFromState(now, rate, now.Add(rate.Period), 0), nil
}

// DeleteExpired removes buckets whose every hit has left the window and
// reports how many rows went.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.clock().UTC()).
		Delete(&models.ThrottleCounter{})
	return result.RowsAffected, result.Error
}

// RunJanitor calls DeleteExpired every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.DeleteExpired(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
