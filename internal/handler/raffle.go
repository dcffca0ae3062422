package handler

import (
	"net/http"
	"strconv"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/service"
)

// RaffleHandler serves the public raffle catalog.
type RaffleHandler struct {
	raffles *service.RaffleService
}

// NewRaffleHandler creates a new RaffleHandler.
func NewRaffleHandler(raffles *service.RaffleService) *RaffleHandler {
	return &RaffleHandler{raffles: raffles}
}

// List handles GET /api/raffles.
func (h *RaffleHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.raffles.Summaries(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, list)
}

// Get handles GET /api/raffles/{id}.
func (h *RaffleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	raffle, err := h.raffles.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if !raffle.IsActive {
		RespondError(w, domain.ErrNotFound("raffle", id.String()))
		return
	}
	RespondJSON(w, http.StatusOK, raffle)
}

// Tickets handles GET /api/raffles/{id}/tickets.
func (h *RaffleHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	id, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	tickets, err := h.raffles.ListTickets(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tickets)
}

// Quote handles GET /api/raffles/{id}/quote?quantity=n.
func (h *RaffleHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		RespondError(w, domain.ErrValidation("quantity must be a number"))
		return
	}
	quote, err := h.raffles.Quote(r.Context(), id, quantity)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, quote)
}
