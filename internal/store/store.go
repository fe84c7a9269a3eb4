package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"undercover-arena/internal/game"
)

// Store wraps DB access plus the hot-state cache in front of it.
type Store struct {
	Pool  *pgxpool.Pool
	cache *sessionCache
}

func New(dsn string, cacheTTL time.Duration) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool, cache: newSessionCache(cacheTTL)}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

// Prime warms the read cache with a session obtained outside GetSession,
// such as one rebuilt during crash recovery.
func (s *Store) Prime(sess *game.Session) {
	s.cache.put(sess)
}

const (
	writeRetryAttempts = 3
	writeRetryBackoff  = 100 * time.Millisecond
)

// withRetry re-runs fn on transient connection errors with exponential
// backoff. SQL-level failures and version conflicts return immediately.
func withRetry(ctx context.Context, fn func() error) error {
	wait := writeRetryBackoff
	var err error
	for attempt := 0; attempt < writeRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !pgconn.SafeToRetry(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
