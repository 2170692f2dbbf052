package api

import (
	"net/http"
	"time"

	"hivemind/internal/platform/apperr"
)

const tokenTTL = 12 * time.Hour

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// @Summary     Coordinator login
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       request  body      loginRequest  true  "Credentials"
// @Success     200      {object}  loginResponse
// @Failure     400      {object}  map[string]string  "invalid body"
// @Failure     401      {object}  map[string]string  "invalid credentials"
// @Router      /api/v1/auth/login [post]
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	u, err := h.userSvc.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		errorResponse(w, err)
		return
	}

	expires := time.Now().Add(tokenTTL)
	token, err := h.jwtMgr.Generate(u.Name, u.Role, tokenTTL)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		Name:      u.Name,
		Role:      u.Role,
		ExpiresAt: expires.UTC(),
	})
}
