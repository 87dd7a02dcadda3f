// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/domain"
)

// CreateUser inserts a new User. email must already be normalized; a taken
// email yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, teamID *string, email, name, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		TeamID:       teamID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := create(db.WithContext(ctx), u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by normalized email, or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsers returns the number of users, optionally restricted to teamID.
func CountUsers(ctx context.Context, db *gorm.DB, teamID string) (int64, error) {
	var total int64
	err := usersScope(db.WithContext(ctx), teamID).Model(&domain.User{}).Count(&total).Error
	return total, err
}

// ListUsersPage returns a page of users ordered by email, optionally
// restricted to teamID.
func ListUsersPage(ctx context.Context, db *gorm.DB, teamID string, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := usersScope(db.WithContext(ctx), teamID).
		Order("email asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteUser removes user id. Sessions cascade.
func DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func usersScope(db *gorm.DB, teamID string) *gorm.DB {
	if teamID == "" {
		return db
	}
	return db.Where("team_id = ?", teamID)
}
