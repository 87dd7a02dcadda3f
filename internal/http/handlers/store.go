package handlers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/http/middleware"
	"github.com/tbourn/teamhub/internal/repo"
)

// DBStore implements Store and the idempotency lookup on top of the repo
// package.
type DBStore struct {
	DB  *gorm.DB
	TTL time.Duration // lifetime of idempotency records
}

// NewDBStore returns a DBStore; ttl <= 0 defaults to 24h.
func NewDBStore(db *gorm.DB, ttl time.Duration) *DBStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DBStore{DB: db, TTL: ttl}
}

func (s *DBStore) TeamsStats(ctx context.Context) (int64, *time.Time, error) {
	return repo.TeamsStats(ctx, s.DB)
}

func (s *DBStore) UsersStats(ctx context.Context, teamID string) (int64, *time.Time, error) {
	return repo.UsersStats(ctx, s.DB, teamID)
}

func (s *DBStore) Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, resourceID, status, s.TTL)
	return err
}

// Lookup satisfies middleware.IdempotencyLookup.
func (s *DBStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (middleware.Replay, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return middleware.Replay{}, false, nil
	}
	if err != nil {
		return middleware.Replay{}, false, err
	}
	return middleware.Replay{ResourceID: rec.ResourceID, Status: rec.Status}, true, nil
}
