package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rafflio/platform/internal/domain"
)

// signatureTolerance bounds the age of a webhook x-signature timestamp.
const signatureTolerance = 5 * time.Minute

// MercadoPago wraps the MercadoPago REST API. Lookups of unknown IDs return
// nil without an error.
type MercadoPago struct {
	accessToken   string
	webhookSecret string
	baseURL       string
	client        *http.Client
	logger        *slog.Logger
	now           func() time.Time
}

// NewMercadoPago creates a MercadoPago client.
func NewMercadoPago(accessToken, webhookSecret, baseURL string, timeout time.Duration, logger *slog.Logger) *MercadoPago {
	if baseURL == "" {
		baseURL = "https://api.mercadopago.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MercadoPago{
		accessToken:   accessToken,
		webhookSecret: webhookSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
		now:           time.Now,
	}
}

// Enabled reports whether an access token is configured.
func (m *MercadoPago) Enabled() bool { return m.accessToken != "" }

// mpPayment mirrors the fields of GET /v1/payments/{id} the system reads.
// MercadoPago sends numeric IDs.
type mpPayment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
	DateApproved      *time.Time  `json:"date_approved"`
}

func (p mpPayment) toDomain() domain.PaymentInfo {
	return domain.PaymentInfo{
		ID:                p.ID.String(),
		Status:            p.Status,
		StatusDetail:      p.StatusDetail,
		ExternalReference: p.ExternalReference,
		TransactionAmount: p.TransactionAmount,
		DateApproved:      p.DateApproved,
	}
}

// GetPayment fetches a payment by ID.
func (m *MercadoPago) GetPayment(ctx context.Context, id string) (*domain.PaymentInfo, error) {
	var p mpPayment
	found, err := m.get(ctx, "/v1/payments/"+url.PathEscape(id), &p)
	if err != nil || !found {
		return nil, err
	}
	info := p.toDomain()
	return &info, nil
}

// GetPreference fetches a checkout preference by ID.
func (m *MercadoPago) GetPreference(ctx context.Context, id string) (*domain.Preference, error) {
	var pref domain.Preference
	found, err := m.get(ctx, "/checkout/preferences/"+url.PathEscape(id), &pref)
	if err != nil || !found {
		return nil, err
	}
	return &pref, nil
}

// GetMerchantOrder fetches a merchant order by ID.
func (m *MercadoPago) GetMerchantOrder(ctx context.Context, id string) (*domain.MerchantOrder, error) {
	var raw struct {
		ID                int64       `json:"id"`
		PreferenceID      string      `json:"preference_id"`
		ExternalReference string      `json:"external_reference"`
		OrderStatus       string      `json:"order_status"`
		Payments          []mpPayment `json:"payments"`
	}
	found, err := m.get(ctx, "/merchant_orders/"+url.PathEscape(id), &raw)
	if err != nil || !found {
		return nil, err
	}
	order := &domain.MerchantOrder{
		ID:                raw.ID,
		PreferenceID:      raw.PreferenceID,
		ExternalReference: raw.ExternalReference,
		OrderStatus:       raw.OrderStatus,
		Payments:          make([]domain.PaymentInfo, 0, len(raw.Payments)),
	}
	for _, p := range raw.Payments {
		order.Payments = append(order.Payments, p.toDomain())
	}
	return order, nil
}

// CreatePreference creates a checkout preference.
func (m *MercadoPago) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("mercadopago access token not configured")
	}

	body := map[string]interface{}{
		"items":              req.Items,
		"external_reference": req.ExternalReference,
		"auto_return":        "approved",
	}
	if req.PayerEmail != "" {
		body["payer"] = map[string]string{"email": req.PayerEmail}
	}
	if len(req.BackURLs) > 0 {
		body["back_urls"] = req.BackURLs
	}
	if req.NotificationURL != "" {
		body["notification_url"] = req.NotificationURL
	}
	payload, _ := json.Marshal(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	m.authorize(httpReq)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mercadopago api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("mercadopago error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var pref domain.Preference
	if err := json.NewDecoder(resp.Body).Decode(&pref); err != nil {
		return nil, fmt.Errorf("decode preference: %w", err)
	}
	return &pref, nil
}

func (m *MercadoPago) get(ctx context.Context, path string, out interface{}) (bool, error) {
	if !m.Enabled() {
		return false, fmt.Errorf("mercadopago access token not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	m.authorize(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("mercadopago api call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("mercadopago error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (m *MercadoPago) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
}

// SignatureRequired reports whether webhooks must carry a valid x-signature.
func (m *MercadoPago) SignatureRequired() bool { return m.webhookSecret != "" }

// VerifyWebhookSignature checks a MercadoPago x-signature header of the form
// "ts=<unix>,v1=<hex hmac>". The signed manifest is
// "id:<dataID>;request-id:<x-request-id>;ts:<ts>;", with the request-id part
// omitted when the header is absent.
func (m *MercadoPago) VerifyWebhookSignature(sigHeader, requestID, dataID string) error {
	if m.webhookSecret == "" {
		return fmt.Errorf("mercadopago webhook secret not configured")
	}

	var ts, v1 string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return fmt.Errorf("invalid signature header format")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	// MercadoPago has sent both seconds and milliseconds.
	if unix > 1e12 {
		unix /= 1000
	}
	if age := m.now().Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("webhook timestamp outside tolerance")
	}

	expected := SignWebhookManifest(m.webhookSecret, ts, requestID, dataID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return fmt.Errorf("invalid webhook signature")
	}
	return nil
}

// SignWebhookManifest computes the v1 value MercadoPago sends for a notification.
func SignWebhookManifest(secret, ts, requestID, dataID string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
