// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Team model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Functions:
//
//   - CreateTeam(ctx, db, ownerID, name, description) -> *domain.Team, error
//     Inserts a new Team row; ErrDuplicate when the name is taken.
//
//   - CountTeams / ListTeamsPage(ctx, db, offset, limit)
//     Paginated listing ordered by name.
//
//   - GetTeam(ctx, db, id) -> *domain.Team, error
//     ErrNotFound if missing.
//
//   - UpdateTeam(ctx, db, id, name, description) -> error
//     ErrNotFound if missing, ErrDuplicate if the new name is taken.
//
//   - DeleteTeam(ctx, db, id) -> error
//     ErrNotFound if missing.
//
//   - CountTeamMembers(ctx, db, id) -> int64, error
//
// Usage:
//
//	team, err := repo.CreateTeam(ctx, db, ownerID, "Platform", "")
//	if errors.Is(err, repo.ErrDuplicate) {
//	    // name taken
//	}
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/domain"
)

// CreateTeam inserts a new Team owned by ownerID. The ID is a random UUID and
// CreatedAt is set to UTC.
func CreateTeam(ctx context.Context, db *gorm.DB, ownerID, name, description string) (*domain.Team, error) {
	now := time.Now().UTC()
	t := &domain.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := create(db.WithContext(ctx), t); err != nil {
		return nil, err
	}
	return t, nil
}

// CountTeams returns the total number of teams.
func CountTeams(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Team{}).Count(&total).Error
	return total, err
}

// ListTeamsPage returns a page of teams ordered by name. Use CountTeams to
// obtain the total for pagination metadata.
func ListTeamsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Team, error) {
	var out []domain.Team
	err := db.WithContext(ctx).
		Order("name asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetTeam fetches a single team by ID, or ErrNotFound.
func GetTeam(ctx context.Context, db *gorm.DB, id string) (*domain.Team, error) {
	var t domain.Team
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTeam sets name and description on team id.
func UpdateTeam(ctx context.Context, db *gorm.DB, id, name, description string) error {
	res := db.WithContext(ctx).
		Model(&domain.Team{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":        name,
			"description": description,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTeam removes team id.
func DeleteTeam(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Team{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTeamMembers returns how many users belong to team id.
func CountTeamMembers(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("team_id = ?", id).Count(&n).Error
	return n, err
}
