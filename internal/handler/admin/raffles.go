package admin

import (
	"net/http"

	"github.com/rafflio/platform/internal/handler"
	"github.com/rafflio/platform/internal/service"
)

// RaffleAdminHandler manages raffles, prizes and price tiers.
type RaffleAdminHandler struct {
	raffles *service.RaffleService
}

// NewRaffleAdminHandler creates a new RaffleAdminHandler.
func NewRaffleAdminHandler(raffles *service.RaffleService) *RaffleAdminHandler {
	return &RaffleAdminHandler{raffles: raffles}
}

// List handles GET /api/admin/raffles, inactive raffles included.
func (h *RaffleAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.raffles.List(r.Context(), false)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, list)
}

// Create handles POST /api/admin/raffles.
func (h *RaffleAdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req handler.RaffleRequest
	if err := handler.DecodeValid(r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	raffle, err := h.raffles.Create(r.Context(), req.Input())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, raffle)
}

// Update handles PATCH /api/admin/raffles/{id}.
func (h *RaffleAdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var in service.UpdateRaffleInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondError(w, errBadBody)
		return
	}
	raffle, err := h.raffles.Update(r.Context(), id, in)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, raffle)
}

// Activate handles POST /api/admin/raffles/{id}/activate.
func (h *RaffleAdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /api/admin/raffles/{id}/deactivate.
func (h *RaffleAdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *RaffleAdminHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.raffles.SetActive(r.Context(), id, active); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

// AddPrize handles POST /api/admin/raffles/{id}/prizes.
func (h *RaffleAdminHandler) AddPrize(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var in service.PrizeInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondError(w, errBadBody)
		return
	}
	prize, err := h.raffles.AddPrize(r.Context(), id, in)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, prize)
}

// UpdatePrize handles PUT /api/admin/raffles/{id}/prizes/{prizeID}.
func (h *RaffleAdminHandler) UpdatePrize(w http.ResponseWriter, r *http.Request) {
	id, prizeID, err := twoIDs(r, "prizeID")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var in service.PrizeInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondError(w, errBadBody)
		return
	}
	prize, err := h.raffles.UpdatePrize(r.Context(), id, prizeID, in)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, prize)
}

// DeletePrize handles DELETE /api/admin/raffles/{id}/prizes/{prizeID}.
func (h *RaffleAdminHandler) DeletePrize(w http.ResponseWriter, r *http.Request) {
	id, prizeID, err := twoIDs(r, "prizeID")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.raffles.DeletePrize(r.Context(), id, prizeID); err != nil {
		handler.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddTier handles POST /api/admin/raffles/{id}/tiers.
func (h *RaffleAdminHandler) AddTier(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var in service.TierInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondError(w, errBadBody)
		return
	}
	tier, err := h.raffles.AddTier(r.Context(), id, in)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, tier)
}

// UpdateTier handles PUT /api/admin/raffles/{id}/tiers/{tierID}.
func (h *RaffleAdminHandler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	id, tierID, err := twoIDs(r, "tierID")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var in service.TierInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondError(w, errBadBody)
		return
	}
	tier, err := h.raffles.UpdateTier(r.Context(), id, tierID, in)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, tier)
}

// DeleteTier handles DELETE /api/admin/raffles/{id}/tiers/{tierID}.
func (h *RaffleAdminHandler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	id, tierID, err := twoIDs(r, "tierID")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.raffles.DeleteTier(r.Context(), id, tierID); err != nil {
		handler.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
