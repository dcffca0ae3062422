//go:build integration

package integration

import (
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/test/integration/testutil"
)

// --- Ticket Claim Tests ---

func TestClaimTickets_ConfirmsWhenComplete(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(20)
	p := env.CreatePurchase(raffle.ID, 2)
	env.MarkPaid(p, "pay-1")

	resp := env.ClaimTickets(p, env.TicketIDs(raffle.ID, 5))
	testutil.AssertStatus(t, resp, http.StatusOK)
	var res domain.ClaimResult
	testutil.DecodeJSON(t, resp, &res)
	assert.False(t, res.Confirmed)
	assert.Equal(t, []int{5}, res.Numbers)

	resp = env.ClaimTickets(p, env.TicketIDs(raffle.ID, 11))
	testutil.AssertStatus(t, resp, http.StatusOK)
	testutil.DecodeJSON(t, resp, &res)
	assert.True(t, res.Confirmed)
	assert.Equal(t, []int{5, 11}, res.Numbers)

	assert.Equal(t, domain.PurchaseConfirmed, testutil.PurchaseStatus(t, env, p.ID))
	assert.Equal(t, []int{5, 11}, testutil.OwnedNumbers(t, env, p.ID))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, p.ID, domain.EventConfirmationEmail))
}

func TestClaimTickets_PendingPurchaseRefused(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	p := env.CreatePurchase(raffle.ID, 1)

	resp := env.ClaimTickets(p, env.TicketIDs(raffle.ID, 1))
	testutil.AssertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
	assert.Empty(t, testutil.OwnedNumbers(t, env, p.ID))
}

func TestClaimTickets_TakenTicketIsAllOrNothing(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	first := env.CreatePurchase(raffle.ID, 1)
	second := env.CreatePurchase(raffle.ID, 2)
	env.MarkPaid(first, "pay-1")
	env.MarkPaid(second, "pay-2")

	resp := env.ClaimTickets(first, env.TicketIDs(raffle.ID, 3))
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.ClaimTickets(second, env.TicketIDs(raffle.ID, 3, 4))
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeTicketsUnavailable)

	assert.Empty(t, testutil.OwnedNumbers(t, env, second.ID))
	assert.Equal(t, domain.PurchasePaid, testutil.PurchaseStatus(t, env, second.ID))
}

func TestClaimTickets_ConcurrentBuyersSameNumber(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	ids := env.TicketIDs(raffle.ID, 7)

	const buyers = 6
	purchases := make([]testutil.Purchase, buyers)
	for i := range purchases {
		purchases[i] = env.CreatePurchase(raffle.ID, 1)
		env.MarkPaid(purchases[i], "pay-"+purchases[i].ID.String())
	}

	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for _, p := range purchases {
		g.Go(func() error {
			resp := env.ClaimTickets(p, ids)
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				wins.Add(1)
			case http.StatusConflict:
				conflicts.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(buyers-1), conflicts.Load())

	var sold int
	require.NoError(t, env.Pool.QueryRow(t.Context(),
		"SELECT COUNT(*) FROM tickets WHERE raffle_id = $1 AND status = 'sold'", raffle.ID).Scan(&sold))
	assert.Equal(t, 1, sold)
}

func TestClaimTickets_OverlappingSetsNeverSplit(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	a := env.CreatePurchase(raffle.ID, 3)
	b := env.CreatePurchase(raffle.ID, 3)
	env.MarkPaid(a, "pay-a")
	env.MarkPaid(b, "pay-b")

	sets := map[testutil.Purchase][]string{
		a: env.TicketIDs(raffle.ID, 3, 4, 5),
		b: env.TicketIDs(raffle.ID, 5, 6, 7),
	}
	var g errgroup.Group
	for p, ids := range sets {
		g.Go(func() error {
			resp := env.ClaimTickets(p, ids)
			resp.Body.Close()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ownedA := testutil.OwnedNumbers(t, env, a.ID)
	ownedB := testutil.OwnedNumbers(t, env, b.ID)
	assert.Equal(t, 3, len(ownedA)+len(ownedB))
	if len(ownedA) > 0 {
		assert.Equal(t, []int{3, 4, 5}, ownedA)
		assert.Equal(t, domain.PurchasePaid, testutil.PurchaseStatus(t, env, b.ID))
	} else {
		assert.Equal(t, []int{5, 6, 7}, ownedB)
		assert.Equal(t, domain.PurchasePaid, testutil.PurchaseStatus(t, env, a.ID))
	}
}

// --- Admin Release Tests ---

func TestAdminRelease(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	p := env.CreatePurchase(raffle.ID, 3)
	env.MarkPaid(p, "pay-1")

	resp := env.ClaimTickets(p, env.TicketIDs(raffle.ID, 1, 2))
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.Do(http.MethodPost, "/api/admin/purchases/"+p.ID.String()+"/release",
		map[string][]string{"ticket_ids": env.TicketIDs(raffle.ID, 2)}, testutil.WithBearer(env.AdminToken("admin")))
	testutil.AssertStatus(t, resp, http.StatusOK)
	var body struct {
		Released []int `json:"released"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, []int{2}, body.Released)
	assert.Equal(t, []int{1}, testutil.OwnedNumbers(t, env, p.ID))
}

func TestAdminRelease_MixedSetIsRefused(t *testing.T) {
	env := testutil.NewTestEnv(t)
	raffle := env.SeedRaffle(10)
	p := env.CreatePurchase(raffle.ID, 2)
	env.MarkPaid(p, "pay-1")

	resp := env.ClaimTickets(p, env.TicketIDs(raffle.ID, 1, 2))
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.Do(http.MethodPost, "/api/admin/purchases/"+p.ID.String()+"/release",
		map[string][]string{"ticket_ids": env.TicketIDs(raffle.ID, 2, 5)}, testutil.WithBearer(env.AdminToken("admin")))
	testutil.AssertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
	assert.Equal(t, []int{1, 2}, testutil.OwnedNumbers(t, env, p.ID))
	assert.Equal(t, 0, testutil.CountOutboxEvents(t, env, raffle.ID, domain.EventTicketsReleased))
}
