// Package domain defines the persistence models for teams, users, and login
// sessions. These types are mapped with GORM and form the core data layer
// of the team management application.
package domain

import "time"

// Team groups users under a unique, human-readable name.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name, unique.
//   - Description: optional free text.
//   - OwnerID: user who created the team (indexed).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//
// Rows are hard-deleted so a freed name can be reused.
type Team struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(100);not null;uniqueIndex:ux_team_name"`
	Description string    `json:"description" gorm:"type:text;not null;default:''"`
	OwnerID     string    `json:"owner_id"    gorm:"type:char(36);not null;index:idx_team_owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Team.
func (Team) TableName() string { return "teams" }

// User is an account that can sign in and optionally belong to one team.
// PasswordHash holds a bcrypt hash and is never serialized.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TeamID       *string   `json:"team_id"    gorm:"type:char(36);index:idx_user_team"`
	Email        string    `json:"email"      gorm:"type:varchar(254);not null;uniqueIndex:ux_user_email"`
	Name         string    `json:"name"       gorm:"type:varchar(100);not null"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(72);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Team is set null when the team row is removed.
	Team *Team `json:"-" gorm:"foreignKey:TeamID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Session is an opaque bearer token issued at login.
type Session struct {
	Token     string    `json:"-"          gorm:"type:char(64);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }
