// Package services – UserService
//
// UserService registers, lists, fetches, and removes users. Emails are case
// folded before they are validated or stored, so lookups and the unique index
// treat "Ada@Example.com" and "ada@example.com" as the same address.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/domain"
	"github.com/tbourn/teamhub/internal/repo"
	"github.com/tbourn/teamhub/internal/utils"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

var (
	emailFolder    = cases.Fold()
	fieldValidator = validator.New()
)

// NormalizeEmail trims and case folds an address.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// UserService provides user-level use cases.
type UserService struct {
	DB *gorm.DB

	// BcryptCost is the work factor used for new password hashes.
	BcryptCost int
	// NameMaxRunes caps display names by rune length.
	NameMaxRunes int
}

// NewUserService constructs a UserService. A cost of 0 selects
// bcrypt.DefaultCost.
func NewUserService(db *gorm.DB, bcryptCost int) *UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{DB: db, BcryptCost: bcryptCost, NameMaxRunes: 100}
}

// Create registers a user, optionally as a member of teamID.
func (s *UserService) Create(ctx context.Context, teamID *string, email, name, password string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Create")
	defer span.End()

	email = NormalizeEmail(email)
	name = normalizeText(name)
	switch {
	case email == "":
		return nil, invalid("email", "email is required")
	case fieldValidator.Var(email, "email") != nil:
		return nil, invalid("email", "email is invalid")
	case name == "":
		return nil, invalid("name", "name is required")
	case s.NameMaxRunes > 0 && utf8.RuneCountInString(name) > s.NameMaxRunes:
		return nil, invalid("name", "name is too long")
	case utf8.RuneCountInString(password) < minPasswordLen:
		return nil, invalid("password", "password must be at least 8 characters")
	case len(password) > maxPasswordBytes:
		return nil, invalid("password", "password must be at most 72 bytes")
	}
	if teamID != nil && strings.TrimSpace(*teamID) == "" {
		teamID = nil
	}
	if teamID != nil {
		span.SetAttributes(attribute.String("team.id", *teamID))
		if _, err := repo.GetTeam(ctx, s.DB, *teamID); err != nil {
			e := notFoundOr("get team", msgTeamNotFound, err)
			if e.Category() == apperr.CategoryNotFound {
				e = e.WithField(apperr.MetaField, "team_id")
			}
			return nil, e
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return nil, storageError("hash password", err)
	}
	u, err := repo.CreateUser(ctx, s.DB, teamID, email, name, string(hash))
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, apperr.Conflict(msgEmailTaken, map[string]any{apperr.MetaField: "email"})
		}
		return nil, storageError("create user", err)
	}
	return u, nil
}

// ListPage returns one page of users ordered by email. A non-empty teamID
// restricts the page to that team's members.
func (s *UserService) ListPage(ctx context.Context, teamID string, page, pageSize int) ([]domain.User, int64, error) {
	page, pageSize, offset := utils.Window(page, pageSize)
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("team.id", teamID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	total, err := repo.CountUsers(ctx, s.DB, teamID)
	if err != nil {
		return nil, 0, storageError("count users", err)
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}
	items, err := repo.ListUsersPage(ctx, s.DB, teamID, offset, pageSize)
	if err != nil {
		return nil, 0, storageError("list users", err)
	}
	return items, total, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("user.id", id)),
	)
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return nil, notFoundOr("get user", msgUserNotFound, err)
	}
	return u, nil
}

// Delete removes a user account. Callers may only delete their own account;
// the user's sessions go with it.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", id),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	if _, err := repo.GetUser(ctx, s.DB, id); err != nil {
		return notFoundOr("get user", msgUserNotFound, err)
	}
	if actorID != id {
		return apperr.Authorization("users can only delete their own account", nil)
	}
	if err := repo.DeleteUser(ctx, s.DB, id); err != nil {
		return notFoundOr("delete user", msgUserNotFound, err)
	}
	return nil
}
