// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for login sessions.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/domain"
)

// CreateSession stores token for userID until now+ttl.
func CreateSession(ctx context.Context, db *gorm.DB, token, userID string, ttl time.Duration) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := create(db.WithContext(ctx), s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession returns a non-expired session or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, token string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes token. Missing tokens are not an error.
func DeleteSession(ctx context.Context, db *gorm.DB, token string) error {
	return db.WithContext(ctx).Where("token = ?", token).Delete(&domain.Session{}).Error
}

// PurgeExpiredSessions deletes sessions that expired before now and returns
// how many were removed.
func PurgeExpiredSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Session{})
	return res.RowsAffected, res.Error
}
