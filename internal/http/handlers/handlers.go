// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they bind and validate input, call application
// services, and translate results into envelopes (including conditional
// responses and idempotent replays). Business rules live in the services;
// every failure is passed to fail() unchanged.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/domain"
	"github.com/tbourn/teamhub/internal/http/middleware"
	"github.com/tbourn/teamhub/internal/services"
	"github.com/tbourn/teamhub/internal/utils"
)

//
// Service contracts (context-aware)
//

// TeamService defines team lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TeamService interface {
	Create(ctx context.Context, ownerID, name, description string) (*domain.Team, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Team, int64, error)
	Get(ctx context.Context, id string) (*domain.Team, error)
	Update(ctx context.Context, userID, id, name, description string) (*domain.Team, error)
	Delete(ctx context.Context, userID, id string) error
}

// UserService defines user account operations consumed by HTTP handlers.
type UserService interface {
	Create(ctx context.Context, teamID *string, email, name, password string) (*domain.User, error)
	ListPage(ctx context.Context, teamID string, page, pageSize int) ([]domain.User, int64, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Delete(ctx context.Context, actorID, id string) error
}

// AuthService issues and revokes session tokens.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*services.Login, error)
	Logout(ctx context.Context, token string) error
}

// Store backs conditional listing and idempotent creates. A nil Store turns
// both features off.
type Store interface {
	// TeamsStats returns the team count and latest update time.
	TeamsStats(ctx context.Context) (int64, *time.Time, error)
	// UsersStats does the same for users, optionally within one team.
	UsersStats(ctx context.Context, teamID string) (int64, *time.Time, error)
	// Remember records the outcome of a create under its idempotency key.
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

var (
	_ TeamService = (*services.TeamService)(nil)
	_ UserService = (*services.UserService)(nil)
	_ AuthService = (*services.AuthService)(nil)
	_ Store       = (*DBStore)(nil)
)

//
// Handler wiring
//

// Handlers groups HTTP endpoints for teams, users, and sessions.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	teams TeamService
	users UserService
	auth  AuthService
	store Store
}

// New constructs and returns a Handlers instance bound to the given services.
func New(teams TeamService, users UserService, auth AuthService, store Store) *Handlers {
	return &Handlers{teams: teams, users: users, auth: auth, store: store}
}

//
// DTOs shared by list endpoints
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// pathID returns the :id path parameter when it is a UUID.
func pathID(c *gin.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.Validation("id must be a UUID", map[string]any{apperr.MetaField: "id"})
	}
	return id, nil
}

// notModified sets a weak ETag built from the collection's count and latest
// update and reports whether the client's If-None-Match already matches it.
// Stats failures skip the check; the list itself will surface the problem.
func notModified(c *gin.Context, scope string, page, pageSize int, stats func() (int64, *time.Time, error)) bool {
	count, maxTS, err := stats()
	if err != nil {
		middleware.LoggerFrom(c).Debug().Err(err).Str("scope", scope).Msg("etag stats unavailable")
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d:%d:%d"`, scope, count, ts, page, pageSize)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// remember stores a created resource under the request's idempotency key, if
// any. Failures are logged and otherwise ignored; the create already happened.
func (h *Handlers) remember(c *gin.Context, resourceID string, status int) {
	key, present := middleware.GetIdempotencyKey(c)
	if !present || h.store == nil {
		return
	}
	scope := middleware.IdempotencyScope(c)
	if err := h.store.Remember(c.Request.Context(), middleware.IdempotencyUser(c), scope, key, resourceID, status); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency record failed")
	}
}

// replay serves a stored create result. It reports false when there is no
// replay for this request or the resource is gone, in which case the handler
// proceeds normally.
func replay[T any](c *gin.Context, get func(ctx context.Context, id string) (T, error)) bool {
	r, found := middleware.ReplayFrom(c)
	if !found {
		return false
	}
	v, err := get(c.Request.Context(), r.ResourceID)
	if err != nil {
		middleware.LoggerFrom(c).Info().Err(err).Str("resource_id", r.ResourceID).Msg("idempotent replay target missing")
		return false
	}
	status := r.Status
	if status == 0 {
		status = http.StatusCreated
	}
	c.Header(middleware.HeaderIdempotentReplay, "true")
	ok(c, status, v)
	return true
}
