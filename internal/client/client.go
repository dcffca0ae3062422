// Package client talks to a running Rafflio API on behalf of a buyer. It
// gives the reconciliation engine and the ticket selector their store,
// gateway, pool and claimer over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
)

// API is an HTTP client for the public endpoints. Purchase-scoped calls send
// the purchase token.
type API struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates an API client. token is the purchase token handed out at
// purchase creation; it may be empty for catalog reads.
func New(baseURL, token string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetPurchase returns nil, nil for unknown purchases.
func (a *API) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	var p domain.Purchase
	found, err := a.do(ctx, http.MethodGet, "/api/purchases/"+url.PathEscape(id), nil, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// UpdateStatus asks the server to move the purchase. The server re-verifies
// paid against the gateway, so a repeated call is harmless.
func (a *API) UpdateStatus(ctx context.Context, id string, status domain.PurchaseStatus, paymentID string) error {
	body := map[string]string{"status": string(status)}
	if paymentID != "" {
		body["payment_id"] = paymentID
	}
	found, err := a.do(ctx, http.MethodPost, "/api/purchases/"+url.PathEscape(id)+"/status", body, nil)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound("purchase", id)
	}
	return nil
}

// GetPayment reads a payment through the server's gateway proxy.
func (a *API) GetPayment(ctx context.Context, id string) (*domain.PaymentInfo, error) {
	var p domain.PaymentInfo
	found, err := a.do(ctx, http.MethodGet, "/api/payment/payments/"+url.PathEscape(id), nil, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// GetPreference reads a preference through the server's gateway proxy.
func (a *API) GetPreference(ctx context.Context, id string) (*domain.Preference, error) {
	var p domain.Preference
	found, err := a.do(ctx, http.MethodGet, "/api/payment/preferences/"+url.PathEscape(id), nil, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// ListTickets returns the raffle's ticket pool.
func (a *API) ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	found, err := a.do(ctx, http.MethodGet, "/api/raffles/"+raffleID.String()+"/tickets", nil, &tickets)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound("raffle", raffleID.String())
	}
	return tickets, nil
}

// ClaimTickets assigns ticketIDs to the purchase. Server AppErrors, such as
// TICKETS_UNAVAILABLE, come back as *domain.AppError.
func (a *API) ClaimTickets(ctx context.Context, purchaseID uuid.UUID, ticketIDs []uuid.UUID) (*domain.ClaimResult, error) {
	ids := make([]string, len(ticketIDs))
	for i, id := range ticketIDs {
		ids[i] = id.String()
	}
	var res domain.ClaimResult
	found, err := a.do(ctx, http.MethodPost, "/api/purchases/"+purchaseID.String()+"/tickets", map[string][]string{"ticket_ids": ids}, &res)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound("purchase", purchaseID.String())
	}
	return &res, nil
}

// do sends a JSON request. A 404 reports found=false without an error so
// lookups can follow the nil, nil convention.
func (a *API) do(ctx context.Context, method, path string, in, out interface{}) (bool, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("X-Purchase-Token", a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, decodeError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return true, nil
}

func decodeError(status int, raw []byte) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	return &domain.AppError{Code: body.Code, Message: body.Message, Status: status}
}
