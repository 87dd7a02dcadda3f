// User HTTP handlers.
//
// This file exposes REST endpoints for user accounts:
//   - POST   /users        (register, public, idempotent with Idempotency-Key)
//   - GET    /users        (list, paginated, optional team_id filter, ETag support)
//   - GET    /users/{id}   (fetch)
//   - DELETE /users/{id}   (delete own account)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/domain"
	"github.com/tbourn/teamhub/internal/http/middleware"
)

// CreateUserRequest is the JSON payload for registering a user.
type CreateUserRequest struct {
	// TeamID optionally places the user in an existing team.
	TeamID *string `json:"team_id" binding:"omitempty,uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Email is the login name; compared case-insensitively.
	Email string `json:"email" binding:"required,email,max=254" example:"ada@example.com"`
	// Name is the display name (1–100 chars).
	Name string `json:"name" binding:"required,max=100" example:"Ada Lovelace"`
	// Password must be at least 8 characters.
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// ListUsersResponse wraps a page of users and pagination information.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// CreateUser godoc
// @ID          createUser
// @Summary     Register a user
// @Description Creates a user account. Does not require authentication. Supports idempotency via the Idempotency-Key header.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string                      false  "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.CreateUserRequest  true   "User payload"
//
// @Success     201  {object}  handlers.SuccessEnvelope{data=domain.User}
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     404  {object}  handlers.ErrorResponse  "Team not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Email already registered"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	if replay(c, h.users.Get) {
		return
	}

	var req CreateUserRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	u, err := h.users.Create(c.Request.Context(), req.TeamID, req.Email, req.Name, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	h.remember(c, u.ID, http.StatusCreated)
	ok(c, http.StatusCreated, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users (paginated)
// @Description Returns a page of users, optionally restricted to one team. Supports weak ETag via If-None-Match.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       team_id        query   string  false  "Only members of this team"  format(uuid)
// @Param       page           query   int     false  "Page number"                minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"             minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.SuccessEnvelope{data=handlers.ListUsersResponse}
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed team_id"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	teamID := strings.TrimSpace(c.Query("team_id"))
	if teamID != "" {
		if _, err := uuid.Parse(teamID); err != nil {
			fail(c, apperr.Validation("team_id must be a UUID", map[string]any{apperr.MetaField: "team_id"}))
			return
		}
	}

	if h.store != nil && notModified(c, "users:"+teamID, page, pageSize, func() (int64, *time.Time, error) {
		return h.store.UsersStats(ctx, teamID)
	}) {
		return
	}

	items, total, err := h.users.ListPage(ctx, teamID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{
		Users:      items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.SuccessEnvelope{data=domain.User}
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed ID"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Delete a user
// @Description Deletes the caller's own account.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not your account"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [delete]
func (h *Handlers) DeleteUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.users.Delete(c.Request.Context(), middleware.UserIDFrom(c), id); err != nil {
		fail(c, err)
		return
	}
	noContent(c)
}
