package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/service"
)

// PaymentHandler proxies gateway lookups for clients that run the
// reconciliation engine.
type PaymentHandler struct {
	payments  *service.PaymentService
	purchases *service.PurchaseService
	tokens    *auth.PurchaseTokenManager
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, purchases *service.PurchaseService, tokens *auth.PurchaseTokenManager) *PaymentHandler {
	return &PaymentHandler{payments: payments, purchases: purchases, tokens: tokens}
}

// GetPayment handles GET /api/payment/payments/{id}.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pay, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if pay == nil {
		RespondError(w, domain.ErrNotFound("payment", id))
		return
	}
	RespondJSON(w, http.StatusOK, pay)
}

// GetPreference handles GET /api/payment/preferences/{id}.
func (h *PaymentHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pref, err := h.payments.GetPreference(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if pref == nil {
		RespondError(w, domain.ErrNotFound("preference", id))
		return
	}
	RespondJSON(w, http.StatusOK, pref)
}

// GetMerchantOrder handles GET /api/payment/merchant-orders/{id}.
func (h *PaymentHandler) GetMerchantOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.payments.GetMerchantOrder(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if order == nil {
		RespondError(w, domain.ErrNotFound("merchant order", id))
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// CreatePreference handles POST /api/payment/create-preference. The purchase
// token must belong to the purchase in the body.
func (h *PaymentHandler) CreatePreference(w http.ResponseWriter, r *http.Request) {
	var req PreferenceRequest
	if err := DecodeValid(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	tok, err := h.tokens.Verify(r.Header.Get(auth.PurchaseTokenHeader))
	if err != nil {
		RespondError(w, domain.ErrUnauthorized(err.Error()))
		return
	}
	if tok.PurchaseID != req.PurchaseID {
		RespondError(w, domain.ErrForbidden("token does not match purchase"))
		return
	}

	pref, err := h.purchases.RetryPreference(r.Context(), uuid.MustParse(req.PurchaseID))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, pref)
}
