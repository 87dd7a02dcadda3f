// Session and health HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/http/middleware"
)

// LoginRequest is the JSON payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Exchanges credentials for a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
//
// @Success     200  {object}  handlers.SuccessEnvelope{data=services.Login}
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	lg := middleware.LoggerFrom(c)
	lg.Info().Str("user_id", res.User.ID).Msg("login")
	ok(c, http.StatusOK, res)
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Revokes the bearer token used for this request.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
//
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	token := middleware.BearerToken(c)
	if token == "" {
		fail(c, apperr.Authentication("missing bearer token", nil))
		return
	}
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		fail(c, err)
		return
	}
	noContent(c)
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.SuccessEnvelope{data=handlers.HealthResponse}
// @Router      /health [get]
func Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}
