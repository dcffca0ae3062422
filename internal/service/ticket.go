package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
	"github.com/rafflio/platform/internal/repository"
)

// errConfirmSkipped means the locked, fully assigned purchase did not move
// to confirmed, which the row lock should make impossible.
var errConfirmSkipped = errors.New("confirmation write matched no row")

// SummaryInvalidator drops cached raffle listings after sales change.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context)
}

// TicketService assigns pool tickets to purchases.
type TicketService struct {
	db        DB
	purchases repository.PurchaseRepository
	tickets   repository.TicketRepository
	raffles   repository.RaffleRepository
	prizes    repository.PrizeRepository
	outbox    repository.OutboxRepository
	push      PushPublisher
	cache     SummaryInvalidator
	metrics   *infra.Metrics
	logger    *slog.Logger
}

// NewTicketService creates a TicketService. push and cache may be nil.
func NewTicketService(
	db DB,
	purchases repository.PurchaseRepository,
	tickets repository.TicketRepository,
	raffles repository.RaffleRepository,
	prizes repository.PrizeRepository,
	outbox repository.OutboxRepository,
	push PushPublisher,
	cache SummaryInvalidator,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *TicketService {
	return &TicketService{
		db:        db,
		purchases: purchases,
		tickets:   tickets,
		raffles:   raffles,
		prizes:    prizes,
		outbox:    outbox,
		push:      push,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// ClaimTickets assigns ticketIDs to a paid purchase in one transaction. The
// purchase row is locked first so concurrent claims for it run one at a
// time. When the purchase then owns all its tickets it moves to confirmed
// and the confirmation email is queued in the same transaction. Claiming
// tickets the purchase already owns on a confirmed purchase returns the
// existing numbers.
func (s *TicketService) ClaimTickets(ctx context.Context, purchaseID uuid.UUID, ticketIDs []uuid.UUID) (*domain.ClaimResult, error) {
	if len(ticketIDs) == 0 {
		return nil, domain.ErrValidation("ticket_ids is required")
	}
	requested := dedupe(ticketIDs)

	var result *domain.ClaimResult
	var claimed []int
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		p, err := s.purchases.LockForUpdate(ctx, tx, purchaseID)
		if err != nil {
			return domain.ErrInternal("lock purchase", err)
		}
		if p == nil {
			return domain.ErrNotFound("purchase", purchaseID.String())
		}

		switch p.Status {
		case domain.PurchaseConfirmed:
			owned, err := s.ownedIDs(ctx, tx, p)
			if err != nil {
				return err
			}
			for _, id := range requested {
				if !owned[id] {
					return domain.ErrConflict("purchase is already confirmed")
				}
			}
			result = &domain.ClaimResult{PurchaseID: p.ID, Status: p.Status, Numbers: p.TicketNumbers, Confirmed: true}
			return nil
		case domain.PurchasePaid:
		default:
			return domain.ErrConflict("purchase is " + string(p.Status) + ", tickets can only be picked after payment")
		}

		if len(p.TicketNumbers)+len(requested) > p.TicketCount {
			return domain.ErrValidation("selection exceeds the purchase ticket count")
		}

		claimed, err = s.tickets.Claim(ctx, tx, p.RaffleID, p.ID, requested)
		if err != nil {
			return internal("claim tickets", err)
		}

		p.TicketNumbers = append(p.TicketNumbers, claimed...)
		sort.Ints(p.TicketNumbers)
		if err := s.outbox.Insert(ctx, tx, domain.NewTicketsClaimedEvent(p.RaffleID, p.ID, claimed)); err != nil {
			return domain.ErrInternal("write outbox", err)
		}

		if p.FullyAssigned() {
			ok, err := s.purchases.TransitionStatus(ctx, tx, p.ID, domain.PriorStatuses(domain.PurchaseConfirmed), domain.PurchaseConfirmed, nil)
			if err != nil {
				return domain.ErrInternal("confirm purchase", err)
			}
			if !ok {
				return domain.ErrInternal("confirm purchase", errConfirmSkipped)
			}
			p.Status = domain.PurchaseConfirmed
			if err := s.outbox.Insert(ctx, tx, domain.NewStatusChangedEvent(p.ID, domain.PurchasePaid, domain.PurchaseConfirmed)); err != nil {
				return domain.ErrInternal("write outbox", err)
			}
			if err := writeConfirmation(ctx, tx, s.raffles, s.prizes, s.outbox, p); err != nil {
				return err
			}
		}

		result = &domain.ClaimResult{
			PurchaseID: p.ID,
			Status:     p.Status,
			Numbers:    p.TicketNumbers,
			Confirmed:  p.Status == domain.PurchaseConfirmed,
		}
		return nil
	})
	if err != nil {
		switch {
		case domain.HasCode(err, domain.CodeTicketsUnavailable):
			s.metrics.IncClaim("unavailable")
		default:
			s.metrics.IncClaim("error")
		}
		return nil, err
	}
	if claimed == nil {
		return result, nil
	}

	s.metrics.IncClaim("claimed")
	s.logger.Info("tickets claimed", "purchase_id", purchaseID, "numbers", claimed, "confirmed", result.Confirmed)
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if result.Confirmed {
		s.metrics.IncTransition(string(domain.PurchaseConfirmed))
		if s.push != nil {
			evt := domain.PushEvent{PurchaseID: purchaseID.String(), Status: string(domain.PurchaseConfirmed)}
			if err := s.push.Publish(ctx, evt); err != nil {
				s.logger.Warn("push publish failed", "error", err, "purchase_id", purchaseID)
			}
		}
	}
	return result, nil
}

// Release returns a purchase's tickets to the pool. An empty ticketIDs
// releases all of them. Confirmed purchases cannot release.
func (s *TicketService) Release(ctx context.Context, purchaseID uuid.UUID, ticketIDs []uuid.UUID) ([]int, error) {
	var released []int
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		p, err := s.purchases.LockForUpdate(ctx, tx, purchaseID)
		if err != nil {
			return domain.ErrInternal("lock purchase", err)
		}
		if p == nil {
			return domain.ErrNotFound("purchase", purchaseID.String())
		}
		if p.Status == domain.PurchaseConfirmed {
			return domain.ErrConflict("tickets of a confirmed purchase cannot be released")
		}

		released, err = s.tickets.Release(ctx, tx, purchaseID, ticketIDs)
		if err != nil {
			return internal("release tickets", err)
		}
		if len(released) == 0 {
			return nil
		}
		return s.outbox.Insert(ctx, tx, domain.NewTicketsReleasedEvent(p.RaffleID, p.ID, len(released)))
	})
	if err != nil {
		return nil, internal("release tickets", err)
	}
	if len(released) > 0 {
		s.logger.Info("tickets released", "purchase_id", purchaseID, "numbers", released)
		if s.cache != nil {
			s.cache.Invalidate(ctx)
		}
	}
	return released, nil
}

func (s *TicketService) ownedIDs(ctx context.Context, tx pgx.Tx, p *domain.Purchase) (map[uuid.UUID]bool, error) {
	all, err := s.tickets.ListByRaffle(ctx, tx, p.RaffleID)
	if err != nil {
		return nil, domain.ErrInternal("list tickets", err)
	}
	owned := make(map[uuid.UUID]bool, p.TicketCount)
	for _, t := range all {
		if t.PurchaseID != nil && *t.PurchaseID == p.ID {
			owned[t.ID] = true
		}
	}
	return owned, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
