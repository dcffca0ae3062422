//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/service"
)

// Purchase is a buyer's purchase as returned by POST /api/purchases.
type Purchase struct {
	ID        uuid.UUID
	Token     string
	InitPoint string
}

// Do sends a JSON request. headers may be nil.
func (env *TestEnv) Do(method, path string, body interface{}, headers map[string]string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodGet, path, nil, nil)
}

// POST performs an unauthenticated POST request.
func (env *TestEnv) POST(path string, body interface{}) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPost, path, body, nil)
}

// WithPurchaseToken returns the header set for a buyer-scoped request.
func WithPurchaseToken(token string) map[string]string {
	return map[string]string{auth.PurchaseTokenHeader: token}
}

// WithBearer returns the header set for an admin request.
func WithBearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// RawPOST sends body verbatim with the given headers.
func (env *TestEnv) RawPOST(path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	return resp
}

// AdminToken mints an admin JWT with the given role.
func (env *TestEnv) AdminToken(role string) string {
	env.t.Helper()
	token, err := env.Services.JWT.GenerateToken(auth.RealmAdmin, uuid.New(), role+"@rafflio.test", role)
	if err != nil {
		env.t.Fatalf("AdminToken: %v", err)
	}
	return token
}

// SeedRaffle creates an active raffle with maxTickets numbers, one prize and
// a single-ticket price tier.
func (env *TestEnv) SeedRaffle(maxTickets int) *domain.Raffle {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raffle, err := env.Services.Raffles.Create(ctx, service.CreateRaffleInput{
		Title:      "Integration raffle",
		DrawDate:   time.Now().Add(30 * 24 * time.Hour),
		MaxTickets: maxTickets,
		Prizes:     []service.PrizeInput{{Name: "Bicycle"}},
		Tiers:      []service.TierInput{{Amount: 1000, TicketCount: 1}, {Amount: 2500, TicketCount: 3}},
	})
	if err != nil {
		env.t.Fatalf("SeedRaffle: %v", err)
	}
	return raffle
}

// CreatePurchase buys quantity tickets through the public API with
// MercadoPago as the payment method.
func (env *TestEnv) CreatePurchase(raffleID uuid.UUID, quantity int) Purchase {
	env.t.Helper()
	resp := env.POST("/api/purchases", map[string]interface{}{
		"raffle_id":      raffleID.String(),
		"price_tier_id":  domain.CustomTier,
		"quantity":       quantity,
		"full_name":      "Ana Integration",
		"email":          "ana@example.com",
		"phone":          "+54 11 5555 0000",
		"payment_method": string(domain.MethodMercadoPago),
	})
	if resp.StatusCode != http.StatusCreated {
		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		env.t.Fatalf("CreatePurchase: expected 201, got %d: %v", resp.StatusCode, body)
	}

	var result service.PurchaseResult
	DecodeJSON(env.t, resp, &result)
	return Purchase{ID: result.Purchase.ID, Token: result.Token, InitPoint: result.InitPoint}
}

// MarkPaid approves a payment for the purchase at the gateway and reports it
// through the buyer status endpoint.
func (env *TestEnv) MarkPaid(p Purchase, paymentID string) {
	env.t.Helper()
	env.Gateway.SetPayment(paymentID, domain.GatewayApproved, p.ID.String())
	resp := env.Do(http.MethodPost, "/api/purchases/"+p.ID.String()+"/status",
		map[string]string{"status": string(domain.PurchasePaid), "payment_id": paymentID},
		WithPurchaseToken(p.Token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("MarkPaid: expected 200, got %d", resp.StatusCode)
	}
}

// TicketIDs resolves raffle ticket numbers to ticket IDs.
func (env *TestEnv) TicketIDs(raffleID uuid.UUID, numbers ...int) []string {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids := make([]string, 0, len(numbers))
	for _, n := range numbers {
		var id uuid.UUID
		err := env.Pool.QueryRow(ctx,
			"SELECT id FROM tickets WHERE raffle_id = $1 AND number = $2", raffleID, n).Scan(&id)
		if err != nil {
			env.t.Fatalf("TicketIDs: number %d: %v", n, err)
		}
		ids = append(ids, id.String())
	}
	return ids
}

// ClaimTickets posts a ticket claim for the purchase.
func (env *TestEnv) ClaimTickets(p Purchase, ticketIDs []string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPost, "/api/purchases/"+p.ID.String()+"/tickets",
		map[string][]string{"ticket_ids": ticketIDs}, WithPurchaseToken(p.Token))
}
