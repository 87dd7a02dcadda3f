// Team HTTP handlers.
//
// This file exposes REST endpoints for team resources:
//   - POST   /teams        (create, idempotent with Idempotency-Key)
//   - GET    /teams        (list, paginated, ETag support)
//   - GET    /teams/{id}   (fetch)
//   - PUT    /teams/{id}   (rename / describe, owner only)
//   - DELETE /teams/{id}   (delete, owner only, must have no members)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/teamhub/internal/domain"
	"github.com/tbourn/teamhub/internal/http/middleware"
)

// TeamRequest is the JSON payload for creating or updating a team.
type TeamRequest struct {
	// Name is unique across teams (1–100 chars).
	Name string `json:"name" binding:"required,max=100" example:"Platform"`
	// Description is optional free text (up to 500 chars).
	Description string `json:"description" binding:"max=500" example:"Runs the shared infrastructure"`
}

// ListTeamsResponse wraps a page of teams and pagination information.
type ListTeamsResponse struct {
	Teams      []domain.Team `json:"teams"`
	Pagination Pagination    `json:"pagination"`
}

// CreateTeam godoc
// @ID          createTeam
// @Summary     Create a team
// @Description Creates a team owned by the caller. Supports idempotency via the Idempotency-Key header (same key → same team).
// @Tags        Teams
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                 false  "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.TeamRequest   true   "Team payload"
//
// @Success     201  {object}  handlers.SuccessEnvelope{data=domain.Team}
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     409  {object}  handlers.ErrorResponse  "Team name taken"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /teams [post]
func (h *Handlers) CreateTeam(c *gin.Context) {
	if replay(c, h.teams.Get) {
		return
	}

	var req TeamRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	t, err := h.teams.Create(c.Request.Context(), middleware.UserIDFrom(c), req.Name, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	h.remember(c, t.ID, http.StatusCreated)
	ok(c, http.StatusCreated, t)
}

// ListTeams godoc
// @ID          listTeams
// @Summary     List teams (paginated)
// @Description Returns a page of teams. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Teams
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"teams:3:1700000000:1:20\")
// @Param       page           query   int     false  "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.SuccessEnvelope{data=handlers.ListTeamsResponse}
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /teams [get]
func (h *Handlers) ListTeams(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if h.store != nil && notModified(c, "teams", page, pageSize, func() (int64, *time.Time, error) {
		return h.store.TeamsStats(ctx)
	}) {
		return
	}

	items, total, err := h.teams.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, ListTeamsResponse{
		Teams:      items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetTeam godoc
// @ID          getTeam
// @Summary     Get a team
// @Tags        Teams
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Team ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.SuccessEnvelope{data=domain.Team}
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed ID"
// @Failure     404  {object}  handlers.ErrorResponse  "Team not found"
// @Router      /teams/{id} [get]
func (h *Handlers) GetTeam(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	t, err := h.teams.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// UpdateTeam godoc
// @ID          updateTeam
// @Summary     Update a team
// @Description Renames a team and replaces its description. Only the owner may update it.
// @Tags        Teams
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                true  "Team ID (UUID)"  format(uuid)
// @Param       body  body  handlers.TeamRequest  true  "New values"
//
// @Success     200  {object}  handlers.SuccessEnvelope{data=domain.Team}
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Team not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Team name taken"
// @Router      /teams/{id} [put]
func (h *Handlers) UpdateTeam(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req TeamRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	t, err := h.teams.Update(c.Request.Context(), middleware.UserIDFrom(c), id, req.Name, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTeam godoc
// @ID          deleteTeam
// @Summary     Delete a team
// @Description Deletes an empty team. Only the owner may delete it.
// @Tags        Teams
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Team ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Team not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Team still has members"
// @Router      /teams/{id} [delete]
func (h *Handlers) DeleteTeam(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.teams.Delete(c.Request.Context(), middleware.UserIDFrom(c), id); err != nil {
		fail(c, err)
		return
	}
	noContent(c)
}
