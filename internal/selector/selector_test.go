package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflio/platform/internal/domain"
)

// --- Fakes ---

type fakePool struct {
	tickets []domain.Ticket
	err     error
	loads   int
}

func (f *fakePool) ListTickets(_ context.Context, _ uuid.UUID) ([]domain.Ticket, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Ticket(nil), f.tickets...), nil
}

func (f *fakePool) sell(number int, owner uuid.UUID) {
	for i := range f.tickets {
		if f.tickets[i].Number == number {
			f.tickets[i].Status = domain.TicketSold
			f.tickets[i].PurchaseID = &owner
		}
	}
}

type fakeClaimer struct {
	calls  [][]uuid.UUID
	result *domain.ClaimResult
	err    error
}

func (f *fakeClaimer) ClaimTickets(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (*domain.ClaimResult, error) {
	f.calls = append(f.calls, ids)
	return f.result, f.err
}

func newPool(raffleID uuid.UUID, n int) *fakePool {
	p := &fakePool{}
	for i := 1; i <= n; i++ {
		p.tickets = append(p.tickets, domain.Ticket{ID: uuid.New(), RaffleID: raffleID, Number: i, Status: domain.TicketAvailable})
	}
	return p
}

func paidPurchase(raffleID uuid.UUID, count int) *domain.Purchase {
	return &domain.Purchase{ID: uuid.New(), RaffleID: raffleID, TicketCount: count, Status: domain.PurchasePaid}
}

func stateOf(cells []Cell, number int) CellState {
	for _, c := range cells {
		if c.Number == number {
			return c.State
		}
	}
	return ""
}

// --- Construction Tests ---

func TestNew_RequiresPaidOrConfirmed(t *testing.T) {
	raffleID := uuid.New()
	for _, status := range []domain.PurchaseStatus{domain.PurchasePending, domain.PurchaseFailed} {
		p := paidPurchase(raffleID, 1)
		p.Status = status
		_, err := New(context.Background(), newPool(raffleID, 5), &fakeClaimer{}, p)
		assert.ErrorIs(t, err, ErrPurchaseNotPaid, status)
	}
}

func TestNew_PoolError(t *testing.T) {
	raffleID := uuid.New()
	_, err := New(context.Background(), &fakePool{err: errors.New("db down")}, &fakeClaimer{}, paidPurchase(raffleID, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load ticket pool")
}

// --- Toggle Tests ---

func TestToggle_AddBeyondLimitIsNoop(t *testing.T) {
	raffleID := uuid.New()
	s, err := New(context.Background(), newPool(raffleID, 10), &fakeClaimer{}, paidPurchase(raffleID, 2))
	require.NoError(t, err)

	changed, err := s.Toggle(3)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, _ = s.Toggle(5)
	assert.True(t, changed)

	changed, err = s.Toggle(7)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []int{3, 5}, s.Selection())
	assert.Equal(t, 0, s.Remaining())

	// Removing is always allowed while unconfirmed.
	changed, _ = s.Toggle(3)
	assert.True(t, changed)
	assert.Equal(t, []int{5}, s.Selection())
	assert.Equal(t, 1, s.Remaining())
}

func TestToggle_SoldAndUnknownNumbers(t *testing.T) {
	raffleID := uuid.New()
	pool := newPool(raffleID, 5)
	pool.sell(2, uuid.New())
	s, err := New(context.Background(), pool, &fakeClaimer{}, paidPurchase(raffleID, 1))
	require.NoError(t, err)

	changed, err := s.Toggle(2)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.Toggle(99)
	assert.ErrorIs(t, err, ErrUnknownNumber)
}

func TestView_CellStates(t *testing.T) {
	raffleID := uuid.New()
	pool := newPool(raffleID, 4)
	pool.sell(4, uuid.New())
	s, err := New(context.Background(), pool, &fakeClaimer{}, paidPurchase(raffleID, 2))
	require.NoError(t, err)
	_, _ = s.Toggle(1)

	assert.Equal(t, []Cell{
		{1, CellSelected},
		{2, CellAvailable},
		{3, CellAvailable},
		{4, CellSold},
	}, s.View())
}

// --- Confirm Tests ---

func TestConfirm_RequiresCompleteSelection(t *testing.T) {
	raffleID := uuid.New()
	claimer := &fakeClaimer{}
	s, err := New(context.Background(), newPool(raffleID, 5), claimer, paidPurchase(raffleID, 2))
	require.NoError(t, err)
	_, _ = s.Toggle(1)

	assert.False(t, s.CanConfirm())
	_, err = s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrSelectionIncomplete)
	assert.Empty(t, claimer.calls)
}

func TestConfirm_ClaimsSelectedTickets(t *testing.T) {
	raffleID := uuid.New()
	pool := newPool(raffleID, 5)
	purchase := paidPurchase(raffleID, 2)
	claimer := &fakeClaimer{result: &domain.ClaimResult{
		PurchaseID: purchase.ID, Status: domain.PurchaseConfirmed, Numbers: []int{2, 4}, Confirmed: true,
	}}
	s, err := New(context.Background(), pool, claimer, purchase)
	require.NoError(t, err)
	_, _ = s.Toggle(4)
	_, _ = s.Toggle(2)
	require.True(t, s.CanConfirm())

	numbers, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, numbers)

	require.Len(t, claimer.calls, 1)
	assert.ElementsMatch(t, []uuid.UUID{pool.tickets[1].ID, pool.tickets[3].ID}, claimer.calls[0])
	assert.True(t, s.Confirmed())
	assert.False(t, s.CanConfirm())

	// Confirmed purchases are locked.
	changed, err := s.Toggle(2)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestConfirm_AlreadyConfirmedIsNoop(t *testing.T) {
	raffleID := uuid.New()
	owner := paidPurchase(raffleID, 2)
	owner.Status = domain.PurchaseConfirmed
	owner.TicketNumbers = []int{7, 12}
	pool := newPool(raffleID, 12)
	pool.sell(7, owner.ID)
	pool.sell(12, owner.ID)
	claimer := &fakeClaimer{}

	s, err := New(context.Background(), pool, claimer, owner)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 12}, s.Selection())
	assert.Equal(t, CellSelected, stateOf(s.View(), 7))

	numbers, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{7, 12}, numbers)
	assert.Empty(t, claimer.calls)
}

func TestConfirm_RaceRefreshesPoolAndDropsStaleNumbers(t *testing.T) {
	raffleID := uuid.New()
	pool := newPool(raffleID, 50)
	purchase := paidPurchase(raffleID, 1)
	claimer := &fakeClaimer{err: domain.ErrTicketsUnavailable()}

	s, err := New(context.Background(), pool, claimer, purchase)
	require.NoError(t, err)
	changed, err := s.Toggle(42)
	require.NoError(t, err)
	require.True(t, changed)

	// Another buyer takes 42 before the claim lands.
	pool.sell(42, uuid.New())

	_, err = s.Confirm(context.Background())
	require.ErrorIs(t, err, ErrRaceOnClaim)

	assert.Equal(t, domain.PurchasePaid, s.Purchase().Status)
	assert.Empty(t, s.Selection())
	assert.Equal(t, CellSold, stateOf(s.View(), 42))
	assert.Equal(t, 2, pool.loads)
}

func TestConfirm_RaceWithRefreshFailure(t *testing.T) {
	raffleID := uuid.New()
	pool := newPool(raffleID, 3)
	claimer := &fakeClaimer{err: domain.ErrTicketsUnavailable()}
	s, err := New(context.Background(), pool, claimer, paidPurchase(raffleID, 1))
	require.NoError(t, err)
	_, _ = s.Toggle(1)

	pool.err = errors.New("timeout")
	_, err = s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrRaceOnClaim)
	assert.Contains(t, err.Error(), "timeout")
}

func TestConfirm_OtherErrorsPassThrough(t *testing.T) {
	raffleID := uuid.New()
	claimer := &fakeClaimer{err: domain.ErrConflict("purchase is not paid")}
	s, err := New(context.Background(), newPool(raffleID, 3), claimer, paidPurchase(raffleID, 1))
	require.NoError(t, err)
	_, _ = s.Toggle(3)

	_, err = s.Confirm(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRaceOnClaim)
	assert.True(t, domain.HasCode(err, domain.CodeConflict))
	assert.Equal(t, []int{3}, s.Selection())
}

func TestConfirm_PartiallyOwnedSendsOnlyNewTickets(t *testing.T) {
	raffleID := uuid.New()
	purchase := paidPurchase(raffleID, 2)
	purchase.TicketNumbers = []int{1}
	pool := newPool(raffleID, 3)
	pool.sell(1, purchase.ID)
	claimer := &fakeClaimer{result: &domain.ClaimResult{Status: domain.PurchaseConfirmed, Numbers: []int{1, 3}, Confirmed: true}}

	s, err := New(context.Background(), pool, claimer, purchase)
	require.NoError(t, err)

	changed, _ := s.Toggle(1)
	assert.False(t, changed, "owned numbers stay selected")
	_, _ = s.Toggle(3)

	numbers, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, numbers)
	assert.Equal(t, [][]uuid.UUID{{pool.tickets[2].ID}}, claimer.calls)
}
