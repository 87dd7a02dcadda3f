// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/domain"
)

// TeamsStats returns the number of teams and the greatest UpdatedAt among
// them. When there are no teams, count is 0 and maxUpdatedAt is nil.
func TeamsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	return tableStats(db.WithContext(ctx).Model(&domain.Team{}))
}

// UsersStats is TeamsStats for users, optionally restricted to teamID.
func UsersStats(ctx context.Context, db *gorm.DB, teamID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return tableStats(usersScope(db.WithContext(ctx), teamID).Model(&domain.User{}))
}

func tableStats(q *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
