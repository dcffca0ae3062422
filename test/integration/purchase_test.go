//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/service"
	"github.com/rafflio/platform/test/integration/testutil"
)

// --- Purchase Creation Tests ---

func TestCreatePurchase_MercadoPago(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(20)

	p := env.CreatePurchase(raffle.ID, 2)
	assert.NotEmpty(t, p.Token)
	assert.Contains(t, p.InitPoint, "https://mp.test/checkout/")
	assert.Equal(t, domain.PurchasePending, testutil.PurchaseStatus(t, env, p.ID))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, p.ID, domain.EventPurchaseCreated))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, p.ID, domain.EventPurchaseLinkEmail))
}

func TestCreatePurchase_InactiveRaffle(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	require.NoError(t, env.Services.Raffles.SetActive(t.Context(), raffle.ID, false))

	resp := env.POST("/api/purchases", map[string]interface{}{
		"raffle_id":      raffle.ID.String(),
		"price_tier_id":  domain.CustomTier,
		"quantity":       1,
		"full_name":      "Ana Integration",
		"email":          "ana@example.com",
		"phone":          "+54 11 5555 0000",
		"payment_method": "mercadopago",
	})
	testutil.AssertStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestCreatePurchase_CashRequiresAdmin(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	body := map[string]interface{}{
		"raffle_id":      raffle.ID.String(),
		"price_tier_id":  domain.CustomTier,
		"quantity":       1,
		"full_name":      "Ana Integration",
		"email":          "ana@example.com",
		"phone":          "+54 11 5555 0000",
		"payment_method": "cash",
	}

	resp := env.POST("/api/purchases", body)
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.Do(http.MethodPost, "/api/purchases", body, testutil.WithBearer(env.AdminToken("admin")))
	testutil.AssertStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
}

// --- Purchase Token Tests ---

func TestPurchaseToken_Required(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	p := env.CreatePurchase(raffle.ID, 1)
	other := env.CreatePurchase(raffle.ID, 1)

	resp := env.GET("/api/purchases/" + p.ID.String())
	testutil.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = env.Do(http.MethodGet, "/api/purchases/"+p.ID.String(), nil, testutil.WithPurchaseToken(other.Token))
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = env.Do(http.MethodGet, "/api/purchases/"+p.ID.String(), nil, testutil.WithPurchaseToken(p.Token))
	testutil.AssertStatus(t, resp, http.StatusOK)
	var got domain.Purchase
	testutil.DecodeJSON(t, resp, &got)
	assert.Equal(t, p.ID, got.ID)
}

// --- Status Update Tests ---

func TestUpdateStatus_PaidIsIdempotent(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	p := env.CreatePurchase(raffle.ID, 1)

	env.MarkPaid(p, "pay-1")
	env.MarkPaid(p, "pay-1")

	assert.Equal(t, domain.PurchasePaid, testutil.PurchaseStatus(t, env, p.ID))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, p.ID, domain.EventPurchaseStatusChanged))
}

func TestUpdateStatus_PaymentForAnotherPurchase(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	p := env.CreatePurchase(raffle.ID, 1)
	env.Gateway.SetPayment("pay-9", domain.GatewayApproved, uuid.NewString())

	resp := env.Do(http.MethodPost, "/api/purchases/"+p.ID.String()+"/status",
		map[string]string{"status": "paid", "payment_id": "pay-9"}, testutil.WithPurchaseToken(p.Token))
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
	assert.Equal(t, domain.PurchasePending, testutil.PurchaseStatus(t, env, p.ID))
}

func TestUpdateStatus_FailedRequiresRejectedPayment(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	p := env.CreatePurchase(raffle.ID, 1)
	statusURL := "/api/purchases/" + p.ID.String() + "/status"

	resp := env.Do(http.MethodPost, statusURL,
		map[string]string{"status": "failed"}, testutil.WithPurchaseToken(p.Token))
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	env.Gateway.SetPayment("pay-7", domain.GatewayRejected, uuid.NewString())
	resp = env.Do(http.MethodPost, statusURL,
		map[string]string{"status": "failed", "payment_id": "pay-7"}, testutil.WithPurchaseToken(p.Token))
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	env.Gateway.SetPayment("pay-8", domain.GatewayApproved, p.ID.String())
	resp = env.Do(http.MethodPost, statusURL,
		map[string]string{"status": "failed", "payment_id": "pay-8"}, testutil.WithPurchaseToken(p.Token))
	testutil.AssertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
	assert.Equal(t, domain.PurchasePending, testutil.PurchaseStatus(t, env, p.ID))

	env.Gateway.SetPayment("pay-9", domain.GatewayRejected, p.ID.String())
	resp = env.Do(http.MethodPost, statusURL,
		map[string]string{"status": "failed", "payment_id": "pay-9"}, testutil.WithPurchaseToken(p.Token))
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	assert.Equal(t, domain.PurchaseFailed, testutil.PurchaseStatus(t, env, p.ID))
}

// --- Raffle Catalogue Tests ---

func TestRaffleCatalogue(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(5)

	resp := env.GET("/api/raffles/" + raffle.ID.String() + "/tickets")
	testutil.AssertStatus(t, resp, http.StatusOK)
	var tickets []domain.Ticket
	testutil.DecodeJSON(t, resp, &tickets)
	require.Len(t, tickets, 5)
	for i, tk := range tickets {
		assert.Equal(t, i+1, tk.Number)
		assert.Equal(t, domain.TicketAvailable, tk.Status)
	}

	resp = env.GET("/api/raffles/" + raffle.ID.String() + "/quote?quantity=3")
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestRaffleCreate_AdminOnly(t *testing.T) {
	env := testutil.NewTestEnv(t)
	body := service.CreateRaffleInput{Title: "Admin raffle", MaxTickets: 3}

	resp := env.POST("/api/admin/raffles", body)
	testutil.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = env.Do(http.MethodPost, "/api/admin/raffles", body, testutil.WithBearer(env.AdminToken("viewer")))
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}
