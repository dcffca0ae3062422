// Package selector lets a buyer pick ticket numbers for a paid purchase and
// claim them in one atomic request.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
)

var (
	// ErrRaceOnClaim means another purchase took a selected ticket first.
	// The pool has been refreshed and the stale numbers deselected.
	ErrRaceOnClaim = errors.New("some selected tickets are no longer available, pick again")

	ErrSelectionIncomplete = errors.New("selection does not match the purchase ticket count")
	ErrPurchaseNotPaid     = errors.New("purchase is not paid")
	ErrUnknownNumber       = errors.New("ticket number is not part of this raffle")
)

// Pool lists a raffle's tickets with their current status.
type Pool interface {
	ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error)
}

// Claimer assigns tickets to a purchase, all or none. It fails with a
// TICKETS_UNAVAILABLE AppError when any ticket is already taken.
type Claimer interface {
	ClaimTickets(ctx context.Context, purchaseID uuid.UUID, ticketIDs []uuid.UUID) (*domain.ClaimResult, error)
}

// CellState is how a ticket is shown to the buyer.
type CellState string

const (
	CellAvailable CellState = "available"
	CellSelected  CellState = "selected"
	CellSold      CellState = "sold"
)

// Cell is one ticket in the selection grid.
type Cell struct {
	Number int       `json:"number"`
	State  CellState `json:"state"`
}

// Selector holds the local, unsaved choice of numbers for one purchase.
// It is not safe for concurrent use.
type Selector struct {
	pool     Pool
	claimer  Claimer
	purchase domain.Purchase

	tickets  []domain.Ticket
	byNumber map[int]domain.Ticket
	owned    map[int]bool
	selected map[int]bool
}

// New loads the raffle pool for purchase. Numbers the purchase already owns
// start out selected and cannot be deselected.
func New(ctx context.Context, pool Pool, claimer Claimer, purchase *domain.Purchase) (*Selector, error) {
	if purchase == nil {
		return nil, errors.New("purchase is required")
	}
	if purchase.Status != domain.PurchasePaid && purchase.Status != domain.PurchaseConfirmed {
		return nil, fmt.Errorf("%w: status is %s", ErrPurchaseNotPaid, purchase.Status)
	}

	s := &Selector{
		pool:     pool,
		claimer:  claimer,
		purchase: *purchase,
		owned:    make(map[int]bool),
		selected: make(map[int]bool),
	}
	for _, n := range purchase.TicketNumbers {
		s.owned[n] = true
		s.selected[n] = true
	}
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Purchase returns the purchase as last seen by the selector.
func (s *Selector) Purchase() domain.Purchase { return s.purchase }

// Confirmed reports whether the purchase already has all its numbers.
func (s *Selector) Confirmed() bool { return s.purchase.Status == domain.PurchaseConfirmed }

// Toggle selects or deselects n and reports whether the selection changed.
// Adding beyond the ticket count, picking a sold ticket and any change on a
// confirmed purchase are no-ops.
func (s *Selector) Toggle(n int) (bool, error) {
	t, ok := s.byNumber[n]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownNumber, n)
	}
	if s.Confirmed() || s.owned[n] {
		return false, nil
	}
	if s.selected[n] {
		delete(s.selected, n)
		return true, nil
	}
	if t.Status != domain.TicketAvailable {
		return false, nil
	}
	if len(s.selected) >= s.purchase.TicketCount {
		return false, nil
	}
	s.selected[n] = true
	return true, nil
}

// Selection returns the selected numbers in ascending order.
func (s *Selector) Selection() []int {
	out := make([]int, 0, len(s.selected))
	for n := range s.selected {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Remaining is how many more numbers must be picked.
func (s *Selector) Remaining() int {
	return s.purchase.TicketCount - len(s.selected)
}

// CanConfirm is true when the purchase is paid and exactly TicketCount
// numbers are selected.
func (s *Selector) CanConfirm() bool {
	return s.purchase.Status == domain.PurchasePaid && len(s.selected) == s.purchase.TicketCount
}

// View returns every ticket of the raffle in number order.
func (s *Selector) View() []Cell {
	cells := make([]Cell, 0, len(s.tickets))
	for _, t := range s.tickets {
		state := CellAvailable
		switch {
		case s.selected[t.Number]:
			state = CellSelected
		case t.Status != domain.TicketAvailable:
			state = CellSold
		}
		cells = append(cells, Cell{Number: t.Number, State: state})
	}
	return cells
}

// Confirm claims the selected numbers. On a confirmed purchase it returns the
// assigned numbers without calling the server.
func (s *Selector) Confirm(ctx context.Context) ([]int, error) {
	if s.Confirmed() {
		return s.Selection(), nil
	}
	if !s.CanConfirm() {
		return nil, ErrSelectionIncomplete
	}

	ids := make([]uuid.UUID, 0, len(s.selected))
	for _, n := range s.Selection() {
		if !s.owned[n] {
			ids = append(ids, s.byNumber[n].ID)
		}
	}

	res, err := s.claimer.ClaimTickets(ctx, s.purchase.ID, ids)
	if err != nil {
		if domain.HasCode(err, domain.CodeTicketsUnavailable) {
			if _, rerr := s.Refresh(ctx); rerr != nil {
				return nil, errors.Join(ErrRaceOnClaim, rerr)
			}
			return nil, ErrRaceOnClaim
		}
		return nil, fmt.Errorf("claim tickets: %w", err)
	}

	s.purchase.Status = res.Status
	s.purchase.TicketNumbers = append([]int(nil), res.Numbers...)
	for _, n := range res.Numbers {
		s.owned[n] = true
		s.selected[n] = true
		if t, ok := s.byNumber[n]; ok {
			t.Status = domain.TicketSold
			t.PurchaseID = &s.purchase.ID
			s.byNumber[n] = t
		}
	}
	s.reindex()
	return s.Selection(), nil
}

// Refresh reloads the pool and drops selected numbers that are no longer
// available. It returns the dropped numbers.
func (s *Selector) Refresh(ctx context.Context) ([]int, error) {
	tickets, err := s.pool.ListTickets(ctx, s.purchase.RaffleID)
	if err != nil {
		return nil, fmt.Errorf("load ticket pool: %w", err)
	}

	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Number < tickets[j].Number })
	s.tickets = tickets
	s.byNumber = make(map[int]domain.Ticket, len(tickets))
	for _, t := range tickets {
		s.byNumber[t.Number] = t
	}

	var dropped []int
	for _, n := range s.Selection() {
		if s.owned[n] {
			continue
		}
		if t, ok := s.byNumber[n]; !ok || t.Status != domain.TicketAvailable {
			delete(s.selected, n)
			dropped = append(dropped, n)
		}
	}
	return dropped, nil
}

// reindex copies byNumber back into the ordered slice after local updates.
func (s *Selector) reindex() {
	for i, t := range s.tickets {
		s.tickets[i] = s.byNumber[t.Number]
	}
}
