// Package services – TeamService
//
// TeamService owns the team lifecycle: creation, paginated listing, lookup,
// rename, and deletion. Names are normalized and must be unique; a team that
// still has members cannot be deleted.
package services

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/domain"
	"github.com/tbourn/teamhub/internal/repo"
	"github.com/tbourn/teamhub/internal/utils"
)

// TeamService provides team-level use cases.
type TeamService struct {
	DB *gorm.DB

	// NameMaxRunes caps team names by rune length.
	NameMaxRunes int
	// DescriptionMaxRunes caps descriptions by rune length.
	DescriptionMaxRunes int
}

// NewTeamService constructs a TeamService with the default limits.
func NewTeamService(db *gorm.DB) *TeamService {
	return &TeamService{DB: db, NameMaxRunes: 100, DescriptionMaxRunes: 500}
}

// Create validates the input and inserts a team owned by ownerID.
func (s *TeamService) Create(ctx context.Context, ownerID, name, description string) (*domain.Team, error) {
	ctx, span := otel.Tracer("services/TeamService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	name, description, verr := s.validate(name, description)
	if verr != nil {
		return nil, verr
	}
	team, err := repo.CreateTeam(ctx, s.DB, ownerID, name, description)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, apperr.Conflict(msgTeamNameTaken, map[string]any{apperr.MetaField: "name"})
		}
		return nil, storageError("create team", err)
	}
	return team, nil
}

// ListPage returns one page of teams ordered by name, plus the total count.
func (s *TeamService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Team, int64, error) {
	page, pageSize, offset := utils.Window(page, pageSize)
	ctx, span := otel.Tracer("services/TeamService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	total, err := repo.CountTeams(ctx, s.DB)
	if err != nil {
		return nil, 0, storageError("count teams", err)
	}
	if total == 0 {
		return []domain.Team{}, 0, nil
	}
	items, err := repo.ListTeamsPage(ctx, s.DB, offset, pageSize)
	if err != nil {
		return nil, 0, storageError("list teams", err)
	}
	return items, total, nil
}

// Get returns one team.
func (s *TeamService) Get(ctx context.Context, id string) (*domain.Team, error) {
	ctx, span := otel.Tracer("services/TeamService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("team.id", id)),
	)
	defer span.End()

	team, err := repo.GetTeam(ctx, s.DB, id)
	if err != nil {
		return nil, notFoundOr("get team", msgTeamNotFound, err)
	}
	return team, nil
}

// Update renames a team and replaces its description. Only the owner may
// change a team.
func (s *TeamService) Update(ctx context.Context, userID, id, name, description string) (*domain.Team, error) {
	ctx, span := otel.Tracer("services/TeamService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("team.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	name, description, verr := s.validate(name, description)
	if verr != nil {
		return nil, verr
	}

	var out *domain.Team
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team, err := repo.GetTeam(ctx, tx, id)
		if err != nil {
			return notFoundOr("get team", msgTeamNotFound, err)
		}
		if team.OwnerID != userID {
			return apperr.Authorization("only the team owner can change this team", nil)
		}
		if err := repo.UpdateTeam(ctx, tx, id, name, description); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return apperr.Conflict(msgTeamNameTaken, map[string]any{apperr.MetaField: "name"})
			}
			return notFoundOr("update team", msgTeamNotFound, err)
		}
		out, err = repo.GetTeam(ctx, tx, id)
		if err != nil {
			return storageError("reload team", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.From(err)
	}
	return out, nil
}

// Delete removes a team. Teams that still have members are rejected with a
// business_rule error carrying the member count.
func (s *TeamService) Delete(ctx context.Context, userID, id string) error {
	ctx, span := otel.Tracer("services/TeamService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("team.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team, err := repo.GetTeam(ctx, tx, id)
		if err != nil {
			return notFoundOr("get team", msgTeamNotFound, err)
		}
		if team.OwnerID != userID {
			return apperr.Authorization("only the team owner can delete this team", nil)
		}
		members, err := repo.CountTeamMembers(ctx, tx, id)
		if err != nil {
			return storageError("count members", err)
		}
		if members > 0 {
			return apperr.BusinessRule(msgTeamHasMembers, map[string]any{
				apperr.MetaDetails: map[string]any{"members": members},
			})
		}
		if err := repo.DeleteTeam(ctx, tx, id); err != nil {
			return notFoundOr("delete team", msgTeamNotFound, err)
		}
		return nil
	})
	if err != nil {
		return apperr.From(err)
	}
	return nil
}

func (s *TeamService) validate(name, description string) (string, string, *apperr.Error) {
	name = normalizeText(name)
	description = normalizeText(description)
	if name == "" {
		return "", "", invalid("name", "name is required")
	}
	if s.NameMaxRunes > 0 && utf8.RuneCountInString(name) > s.NameMaxRunes {
		return "", "", invalid("name", "name is too long").WithMetadata(map[string]any{
			apperr.MetaDetails: map[string]any{"max": s.NameMaxRunes},
		})
	}
	if s.DescriptionMaxRunes > 0 && utf8.RuneCountInString(description) > s.DescriptionMaxRunes {
		return "", "", invalid("description", "description is too long").WithMetadata(map[string]any{
			apperr.MetaDetails: map[string]any{"max": s.DescriptionMaxRunes},
		})
	}
	return name, description, nil
}
