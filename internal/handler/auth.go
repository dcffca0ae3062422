package handler

import (
	"net/http"

	"github.com/rafflio/platform/internal/service"
)

// AuthHandler handles admin login.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := DecodeValid(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.authSvc.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password}, ClientIP(r))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
