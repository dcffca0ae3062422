package admin

import (
	"net/http"

	"github.com/rafflio/platform/internal/handler"
	"github.com/rafflio/platform/internal/service"
)

// AccountAdminHandler manages bank transfer accounts.
type AccountAdminHandler struct {
	accounts *service.AccountService
}

// NewAccountAdminHandler creates a new AccountAdminHandler.
func NewAccountAdminHandler(accounts *service.AccountService) *AccountAdminHandler {
	return &AccountAdminHandler{accounts: accounts}
}

// Create handles POST /api/admin/accounts.
func (h *AccountAdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req handler.AccountRequest
	if err := handler.DecodeValid(r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	a, err := h.accounts.Create(r.Context(), req.AccountInput)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, a)
}

// Update handles PUT /api/admin/accounts/{id}.
func (h *AccountAdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var req handler.AccountRequest
	if err := handler.DecodeValid(r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	a, err := h.accounts.Update(r.Context(), id, req.AccountInput)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, a)
}

// Delete handles DELETE /api/admin/accounts/{id}.
func (h *AccountAdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.accounts.Delete(r.Context(), id); err != nil {
		handler.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
