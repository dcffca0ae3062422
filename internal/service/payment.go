package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/guard"
	"github.com/rafflio/platform/internal/infra"
)

const gatewayCircuit = "mercadopago"

// Webhook outcomes, also used as metric labels.
const (
	WebhookIgnored            = "ignored"
	WebhookDuplicate          = "duplicate"
	WebhookUpdated            = "updated"
	WebhookUnchanged          = "unchanged"
	WebhookUnknownPayment     = "unknown_payment"
	WebhookUnknownPurchase    = "unknown_purchase"
	WebhookRejectedTransition = "rejected_transition"
)

// WebhookVerifier checks notification signatures.
type WebhookVerifier interface {
	SignatureRequired() bool
	VerifyWebhookSignature(sigHeader, requestID, dataID string) error
}

// WebhookInput is a raw MercadoPago notification.
type WebhookInput struct {
	Body      []byte
	Query     url.Values
	Signature string
	RequestID string
}

// PaymentService processes gateway notifications and proxies gateway
// lookups behind a circuit breaker.
type PaymentService struct {
	gateway   Gateway
	verifier  WebhookVerifier
	purchases *PurchaseService
	push      PushPublisher
	breaker   *guard.CircuitBreaker
	seen      *guard.IdempotencyGuard
	metrics   *infra.Metrics
	logger    *slog.Logger
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	gateway Gateway,
	verifier WebhookVerifier,
	purchases *PurchaseService,
	push PushPublisher,
	breaker *guard.CircuitBreaker,
	seen *guard.IdempotencyGuard,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		gateway:   gateway,
		verifier:  verifier,
		purchases: purchases,
		push:      push,
		breaker:   breaker,
		seen:      seen,
		metrics:   metrics,
		logger:    logger,
	}
}

// webhookBody covers both notification shapes:
// {"type":"payment","data":{"id":"123"}} and {"topic":"payment","resource":...}.
type webhookBody struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data"`
	Resource json.RawMessage `json:"resource"`
}

// ParseWebhook extracts the notification topic and payment ID from the body,
// falling back to the query string MercadoPago also sends.
func ParseWebhook(body []byte, query url.Values) (topic, dataID string, err error) {
	var b webhookBody
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &b); err != nil {
			return "", "", domain.ErrValidation("malformed webhook body")
		}
	}

	topic = firstNonEmpty(b.Type, b.Topic, query.Get("type"), query.Get("topic"))
	dataID = firstNonEmpty(idFrom(b.Data), idFrom(b.Resource), query.Get("data.id"), query.Get("id"))
	return topic, dataID, nil
}

// idFrom reads an id from {"id": ...}, a bare id, or a resource URL.
func idFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.ID) > 0 {
		return scalar(obj.ID)
	}
	s := scalar(raw)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// HandleWebhook looks up the notified payment, writes the mapped purchase
// status and forwards the gateway status to push subscribers. Only
// signature failures and gateway outages return errors, so MercadoPago
// retries exactly those.
func (s *PaymentService) HandleWebhook(ctx context.Context, in WebhookInput) (string, error) {
	outcome, err := s.handleWebhook(ctx, in)
	if err != nil {
		s.metrics.IncWebhook("error")
		return "", err
	}
	s.metrics.IncWebhook(outcome)
	return outcome, nil
}

func (s *PaymentService) handleWebhook(ctx context.Context, in WebhookInput) (string, error) {
	topic, dataID, err := ParseWebhook(in.Body, in.Query)
	if err != nil {
		return "", err
	}
	if topic != "payment" || dataID == "" {
		s.logger.Debug("webhook ignored", "topic", topic, "data_id", dataID)
		return WebhookIgnored, nil
	}

	if s.verifier != nil && s.verifier.SignatureRequired() {
		if err := s.verifier.VerifyWebhookSignature(in.Signature, in.RequestID, dataID); err != nil {
			return "", domain.ErrUnauthorized(fmt.Sprintf("webhook verification failed: %v", err))
		}
	}

	pay, err := s.GetPayment(ctx, dataID)
	if err != nil {
		return "", err
	}
	if pay == nil {
		s.logger.Warn("webhook for unknown payment", "payment_id", dataID)
		return WebhookUnknownPayment, nil
	}

	key := fmt.Sprintf("payment:%s:%s", pay.ID, pay.Status)
	if res := s.seen.Check(ctx, key); !res.Allowed {
		return WebhookDuplicate, nil
	}

	purchaseID, err := uuid.Parse(pay.ExternalReference)
	if err != nil {
		s.logger.Warn("payment without purchase reference", "payment_id", pay.ID, "external_reference", pay.ExternalReference)
		return WebhookUnknownPurchase, nil
	}

	to := domain.PurchaseStatusFor(pay.Status)
	changed, err := s.purchases.Transition(ctx, purchaseID, to, &pay.ID, false)
	switch {
	case domain.HasCode(err, domain.CodeNotFound):
		s.logger.Warn("payment for unknown purchase", "payment_id", pay.ID, "purchase_id", purchaseID)
		return WebhookUnknownPurchase, nil
	case domain.HasCode(err, domain.CodeInvalidTransition), domain.HasCode(err, domain.CodeValidation):
		s.logger.Warn("webhook status not applied",
			"payment_id", pay.ID, "purchase_id", purchaseID, "gateway_status", pay.Status, "error", err)
		return WebhookRejectedTransition, nil
	case err != nil:
		s.seen.Remove(key)
		return "", err
	}

	evt := domain.PushEvent{PurchaseID: purchaseID.String(), Status: domain.PushStatusFor(pay.Status)}
	if s.push != nil {
		if err := s.push.Publish(ctx, evt); err != nil {
			s.logger.Warn("push publish failed", "error", err, "purchase_id", purchaseID)
		}
	}

	s.logger.Info("webhook processed",
		"payment_id", pay.ID, "purchase_id", purchaseID, "gateway_status", pay.Status,
		"amount", infra.MajorToMinor(pay.TransactionAmount), "changed", changed)
	if changed {
		return WebhookUpdated, nil
	}
	return WebhookUnchanged, nil
}

// GetPayment fetches a payment through the circuit breaker.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*domain.PaymentInfo, error) {
	var pay *domain.PaymentInfo
	err := s.call(ctx, func(ctx context.Context) (err error) {
		pay, err = s.gateway.GetPayment(ctx, id)
		return err
	})
	return pay, err
}

// GetPreference fetches a checkout preference through the circuit breaker.
func (s *PaymentService) GetPreference(ctx context.Context, id string) (*domain.Preference, error) {
	var pref *domain.Preference
	err := s.call(ctx, func(ctx context.Context) (err error) {
		pref, err = s.gateway.GetPreference(ctx, id)
		return err
	})
	return pref, err
}

// GetMerchantOrder fetches a merchant order through the circuit breaker.
func (s *PaymentService) GetMerchantOrder(ctx context.Context, id string) (*domain.MerchantOrder, error) {
	var order *domain.MerchantOrder
	err := s.call(ctx, func(ctx context.Context) (err error) {
		order, err = s.gateway.GetMerchantOrder(ctx, id)
		return err
	})
	return order, err
}

func (s *PaymentService) call(ctx context.Context, fn func(context.Context) error) error {
	if s.gateway == nil || !s.gateway.Enabled() {
		return domain.ErrValidation("payment gateway not configured")
	}
	if err := s.breaker.Execute(ctx, gatewayCircuit, fn); err != nil {
		return domain.ErrGateway("payment gateway unavailable", err)
	}
	return nil
}
