package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/rafflio/platform/internal/service"
)

// WebhookHandler handles MercadoPago notifications.
type WebhookHandler struct {
	payments *service.PaymentService
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(payments *service.PaymentService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, logger: logger}
}

// HandleMercadoPago handles POST /api/payment/webhook.
// The raw body is read before any parsing, since the signature covers the
// notification id and MercadoPago also sends it in the query string.
func (h *WebhookHandler) HandleMercadoPago(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	outcome, err := h.payments.HandleWebhook(r.Context(), service.WebhookInput{
		Body:      body,
		Query:     r.URL.Query(),
		Signature: r.Header.Get("x-signature"),
		RequestID: r.Header.Get("x-request-id"),
	})
	if err != nil {
		h.logger.Error("process mercadopago webhook", "error", err)
		RespondError(w, err)
		return
	}

	// MercadoPago retries anything but 2xx
	RespondJSON(w, http.StatusOK, map[string]string{"result": outcome})
}
