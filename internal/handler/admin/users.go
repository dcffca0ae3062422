package admin

import (
	"net/http"

	"github.com/rafflio/platform/internal/handler"
	"github.com/rafflio/platform/internal/service"
)

// UserAdminHandler registers console users. Mounted for superadmins only.
type UserAdminHandler struct {
	authSvc *service.AuthService
}

// NewUserAdminHandler creates a new UserAdminHandler.
func NewUserAdminHandler(authSvc *service.AuthService) *UserAdminHandler {
	return &UserAdminHandler{authSvc: authSvc}
}

// Create handles POST /api/admin/users.
func (h *UserAdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req handler.CreateAdminRequest
	if err := handler.DecodeValid(r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	user, err := h.authSvc.CreateAdmin(r.Context(), req.CreateAdminInput)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, user)
}
