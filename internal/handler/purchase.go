package handler

import (
	"net/http"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/service"
)

// PurchaseHandler serves the buyer-facing purchase endpoints.
type PurchaseHandler struct {
	purchases *service.PurchaseService
	tickets   *service.TicketService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchases *service.PurchaseService, tickets *service.TicketService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, tickets: tickets}
}

// Create handles POST /api/purchases.
func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := DecodeValid(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	// Cash sales are only accepted from a signed-in admin.
	adminOrigin := auth.ClaimsFromContext(r.Context()) != nil
	result, err := h.purchases.Create(r.Context(), req.Input(), adminOrigin)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

// Get handles GET /api/purchases/{id}.
func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	p, err := h.purchases.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// UpdateStatus handles POST /api/purchases/{id}/status. Buyers may only ask
// for paid (re-verified with the gateway) or confirmed.
func (h *PurchaseHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req StatusRequest
	if err := DecodeValid(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	p, err := h.purchases.RequestStatus(r.Context(), id, domain.PurchaseStatus(req.Status), req.PaymentID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// ClaimTickets handles POST /api/purchases/{id}/tickets.
func (h *PurchaseHandler) ClaimTickets(w http.ResponseWriter, r *http.Request) {
	id, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req ClaimRequest
	if err := DecodeValid(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.tickets.ClaimTickets(r.Context(), id, req.IDs())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
