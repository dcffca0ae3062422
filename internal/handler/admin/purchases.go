package admin

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/handler"
	"github.com/rafflio/platform/internal/repository"
	"github.com/rafflio/platform/internal/service"
)

// PurchaseAdminHandler lets operators reconcile purchases by hand.
type PurchaseAdminHandler struct {
	purchases *service.PurchaseService
	tickets   *service.TicketService
}

// NewPurchaseAdminHandler creates a new PurchaseAdminHandler.
func NewPurchaseAdminHandler(purchases *service.PurchaseService, tickets *service.TicketService) *PurchaseAdminHandler {
	return &PurchaseAdminHandler{purchases: purchases, tickets: tickets}
}

// List handles GET /api/admin/purchases?raffle_id=&status=&email=&limit=&offset=.
func (h *PurchaseAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PurchaseFilter{Email: q.Get("email"), Limit: 50}

	if v := q.Get("raffle_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("invalid raffle_id"))
			return
		}
		filter.RaffleID = &id
	}
	if v := q.Get("status"); v != "" {
		status := domain.PurchaseStatus(v)
		if !status.Valid() {
			handler.RespondError(w, domain.ErrValidation("invalid status"))
			return
		}
		filter.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			handler.RespondError(w, domain.ErrValidation("limit must be between 1 and 500"))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			handler.RespondError(w, domain.ErrValidation("invalid offset"))
			return
		}
		filter.Offset = n
	}

	list, err := h.purchases.List(r.Context(), filter)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, list)
}

// Get handles GET /api/admin/purchases/{id}.
func (h *PurchaseAdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	p, err := h.purchases.Get(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, p)
}

// Create handles POST /api/admin/purchases. Admins may record cash sales.
func (h *PurchaseAdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req handler.CreatePurchaseRequest
	if err := handler.DecodeValid(r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	result, err := h.purchases.Create(r.Context(), req.Input(), true)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, result)
}

// SetStatus handles POST /api/admin/purchases/{id}/status.
func (h *PurchaseAdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var req handler.StatusRequest
	if err := handler.DecodeValid(r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	p, err := h.purchases.SetStatus(r.Context(), id, domain.PurchaseStatus(req.Status), req.PaymentID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, p)
}

// Release handles POST /api/admin/purchases/{id}/release.
func (h *PurchaseAdminHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var req handler.ReleaseRequest
	if err := handler.DecodeValid(r, &req); err != nil {
		handler.RespondError(w, err)
		return
	}
	released, err := h.tickets.Release(r.Context(), id, req.IDs())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if released == nil {
		released = []int{}
	}
	handler.RespondJSON(w, http.StatusOK, map[string][]int{"released": released})
}
