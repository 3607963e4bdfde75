package gateway

import (
	"net/http"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/auth"
	httperr "github.com/ecogrid-lab/ecogrid-gateway/internal/core/errors"
	"github.com/gin-gonic/gin"
)

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *auth.User `json:"user,omitempty"`
	ExpiresIn     int64      `json:"expiresIn,omitempty"`
}

// HandleLogin handles POST /v1/session/login
func (h *Handler) HandleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, httperr.HttpInvalidJsonError, "Invalid login request", err)
		return
	}

	resp, err := h.session.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, "Login failed")
		return
	}
	user := resp.User
	c.JSON(http.StatusOK, sessionResponse{Authenticated: true, User: &user, ExpiresIn: resp.ExpiresIn})
}

// HandleLogout handles POST /v1/session/logout
func (h *Handler) HandleLogout(c *gin.Context) {
	h.session.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// HandleSession handles GET /v1/session
func (h *Handler) HandleSession(c *gin.Context) {
	if !h.session.Authenticated() {
		c.JSON(http.StatusOK, sessionResponse{})
		return
	}
	user, err := h.session.CurrentUser(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to load current user")
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Authenticated: true, User: &user})
}

// HandleInvalidate handles POST /v1/cache/invalidate?pattern=
func (h *Handler) HandleInvalidate(c *gin.Context) {
	var query struct {
		Pattern string `form:"pattern" binding:"required"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBadRequest(c, httperr.HttpInvalidParamsError, "pattern is required", err)
		return
	}
	n := h.api.Invalidate(query.Pattern)
	c.JSON(http.StatusOK, gin.H{"pattern": query.Pattern, "removed": n})
}

// HandleClearCache handles DELETE /v1/cache
func (h *Handler) HandleClearCache(c *gin.Context) {
	h.api.ClearCache()
	c.Status(http.StatusNoContent)
}
