package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/policy"
	"github.com/rafflio/platform/internal/projection"
	"github.com/rafflio/platform/internal/repository"
)

// RaffleService manages raffles, their prizes, price tiers and ticket pools.
type RaffleService struct {
	db      DB
	raffles repository.RaffleRepository
	prizes  repository.PrizeRepository
	tiers   repository.PriceTierRepository
	tickets repository.TicketRepository
	cache   projection.Store
	logger  *slog.Logger
}

// NewRaffleService creates a RaffleService. cache may be nil.
func NewRaffleService(
	db DB,
	raffles repository.RaffleRepository,
	prizes repository.PrizeRepository,
	tiers repository.PriceTierRepository,
	tickets repository.TicketRepository,
	cache projection.Store,
	logger *slog.Logger,
) *RaffleService {
	return &RaffleService{
		db:      db,
		raffles: raffles,
		prizes:  prizes,
		tiers:   tiers,
		tickets: tickets,
		cache:   cache,
		logger:  logger,
	}
}

// PrizeInput describes one prize.
type PrizeInput struct {
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TierInput describes one price tier.
type TierInput struct {
	Amount      int64 `json:"amount"`
	TicketCount int   `json:"ticket_count"`
}

// CreateRaffleInput holds the fields for a new raffle.
type CreateRaffleInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	DrawDate    time.Time    `json:"draw_date"`
	MaxTickets  int          `json:"max_tickets"`
	Inactive    bool         `json:"inactive"`
	Prizes      []PrizeInput `json:"prizes"`
	Tiers       []TierInput  `json:"tiers"`
}

// UpdateRaffleInput holds the editable raffle fields. Nil fields are kept.
type UpdateRaffleInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DrawDate    *time.Time `json:"draw_date"`
	MaxTickets  *int       `json:"max_tickets"`
}

// Create inserts the raffle, its prizes and tiers, and tickets 1..MaxTickets
// in one transaction.
func (s *RaffleService) Create(ctx context.Context, in CreateRaffleInput) (*domain.Raffle, error) {
	if in.MaxTickets <= 0 {
		return nil, domain.ErrValidation("max_tickets must be positive")
	}
	raffle := &domain.Raffle{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		DrawDate:    in.DrawDate,
		MaxTickets:  in.MaxTickets,
		IsActive:    !in.Inactive,
		Prizes:      []domain.Prize{},
		PriceTiers:  []domain.PriceTier{},
	}
	for i, p := range in.Prizes {
		pos := p.Position
		if pos == 0 {
			pos = i + 1
		}
		raffle.Prizes = append(raffle.Prizes, domain.Prize{
			ID: uuid.New(), RaffleID: raffle.ID, Position: pos, Name: p.Name, Description: p.Description,
		})
	}
	for _, t := range in.Tiers {
		tier := domain.PriceTier{ID: uuid.New(), RaffleID: raffle.ID, Amount: t.Amount, TicketCount: t.TicketCount}
		if err := tier.Validate(); err != nil {
			return nil, err
		}
		raffle.PriceTiers = append(raffle.PriceTiers, tier)
	}

	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.raffles.Create(ctx, tx, raffle); err != nil {
			return internal("create raffle", err)
		}
		for i := range raffle.Prizes {
			if err := s.prizes.Create(ctx, tx, &raffle.Prizes[i]); err != nil {
				return internal("create prize", err)
			}
		}
		for i := range raffle.PriceTiers {
			if err := s.tiers.Create(ctx, tx, &raffle.PriceTiers[i]); err != nil {
				return internal("create price tier", err)
			}
		}
		if err := s.tickets.CreatePool(ctx, tx, raffle.ID, raffle.MaxTickets); err != nil {
			return internal("create ticket pool", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("raffle created", "raffle_id", raffle.ID, "max_tickets", raffle.MaxTickets)
	return raffle, nil
}

// Get returns a raffle with prizes and price tiers.
func (s *RaffleService) Get(ctx context.Context, id uuid.UUID) (*domain.Raffle, error) {
	raffle, err := s.raffles.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, domain.ErrInternal("find raffle", err)
	}
	if raffle == nil {
		return nil, domain.ErrNotFound("raffle", id.String())
	}
	if raffle.Prizes, err = s.prizes.ListByRaffle(ctx, s.db, id); err != nil {
		return nil, domain.ErrInternal("list prizes", err)
	}
	if raffle.PriceTiers, err = s.tiers.ListByRaffle(ctx, s.db, id); err != nil {
		return nil, domain.ErrInternal("list price tiers", err)
	}
	return raffle, nil
}

// Update edits raffle fields. max_tickets may only grow; new numbers are
// added to the pool in the same transaction.
func (s *RaffleService) Update(ctx context.Context, id uuid.UUID, in UpdateRaffleInput) (*domain.Raffle, error) {
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		raffle, err := s.raffles.FindByID(ctx, tx, id)
		if err != nil {
			return domain.ErrInternal("find raffle", err)
		}
		if raffle == nil {
			return domain.ErrNotFound("raffle", id.String())
		}
		if in.Title != nil {
			raffle.Title = *in.Title
		}
		if in.Description != nil {
			raffle.Description = *in.Description
		}
		if in.DrawDate != nil {
			raffle.DrawDate = *in.DrawDate
		}
		grow := false
		if in.MaxTickets != nil && *in.MaxTickets != raffle.MaxTickets {
			if *in.MaxTickets < raffle.MaxTickets {
				return domain.ErrValidation("max_tickets cannot be reduced")
			}
			raffle.MaxTickets = *in.MaxTickets
			grow = true
		}
		if err := s.raffles.Update(ctx, tx, raffle); err != nil {
			return internal("update raffle", err)
		}
		if grow {
			if err := s.tickets.ExtendPool(ctx, tx, id, raffle.MaxTickets); err != nil {
				return domain.ErrInternal("extend ticket pool", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// SetActive shows or hides a raffle from the public catalog.
func (s *RaffleService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.raffles.SetActive(ctx, s.db, id, active); err != nil {
		return internal("set raffle active", err)
	}
	s.invalidate(ctx)
	s.logger.Info("raffle visibility changed", "raffle_id", id, "active", active)
	return nil
}

// List returns raffles for the admin console.
func (s *RaffleService) List(ctx context.Context, activeOnly bool) ([]domain.Raffle, error) {
	raffles, err := s.raffles.List(ctx, s.db, activeOnly)
	if err != nil {
		return nil, domain.ErrInternal("list raffles", err)
	}
	if raffles == nil {
		raffles = []domain.Raffle{}
	}
	return raffles, nil
}

// Summaries returns the public listing of active raffles, served from the
// projection cache when possible.
func (s *RaffleService) Summaries(ctx context.Context) ([]domain.RaffleSummary, error) {
	if s.cache != nil {
		list, err := projection.GetSummaries(ctx, s.cache)
		if err == nil {
			return list, nil
		}
		if !errors.Is(err, projection.ErrMiss) {
			s.logger.Warn("summary cache read failed", "error", err)
		}
	}

	raffles, err := s.List(ctx, true)
	if err != nil {
		return nil, err
	}
	list := make([]domain.RaffleSummary, 0, len(raffles))
	for _, r := range raffles {
		list = append(list, domain.RaffleSummary{
			ID: r.ID, Title: r.Title, DrawDate: r.DrawDate, MaxTickets: r.MaxTickets, SoldTickets: r.SoldTickets,
		})
	}

	if s.cache != nil {
		if err := projection.PutSummaries(ctx, s.cache, list); err != nil {
			s.logger.Warn("summary cache write failed", "error", err)
		}
	}
	return list, nil
}

// Invalidate drops cached summaries. Other services call it after sales.
func (s *RaffleService) Invalidate(ctx context.Context) { s.invalidate(ctx) }

func (s *RaffleService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := projection.InvalidateSummaries(ctx, s.cache); err != nil {
		s.logger.Warn("summary cache invalidate failed", "error", err)
	}
}

// ListTickets returns the raffle's pool ordered by number.
func (s *RaffleService) ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	if _, err := s.mustExist(ctx, raffleID); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByRaffle(ctx, s.db, raffleID)
	if err != nil {
		return nil, domain.ErrInternal("list tickets", err)
	}
	return tickets, nil
}

// Quote prices a quantity against the raffle's tiers.
func (s *RaffleService) Quote(ctx context.Context, raffleID uuid.UUID, quantity int) (policy.Quote, error) {
	if _, err := s.mustExist(ctx, raffleID); err != nil {
		return policy.Quote{}, err
	}
	tiers, err := s.tiers.ListByRaffle(ctx, s.db, raffleID)
	if err != nil {
		return policy.Quote{}, domain.ErrInternal("list price tiers", err)
	}
	q, err := policy.QuoteQuantity(tiers, quantity)
	if err != nil {
		return policy.Quote{}, domain.ErrValidation(err.Error())
	}
	return q, nil
}

// --- Prizes ---

func (s *RaffleService) AddPrize(ctx context.Context, raffleID uuid.UUID, in PrizeInput) (*domain.Prize, error) {
	if _, err := s.mustExist(ctx, raffleID); err != nil {
		return nil, err
	}
	prize := &domain.Prize{ID: uuid.New(), RaffleID: raffleID, Position: in.Position, Name: in.Name, Description: in.Description}
	if err := s.prizes.Create(ctx, s.db, prize); err != nil {
		return nil, internal("create prize", err)
	}
	return prize, nil
}

func (s *RaffleService) UpdatePrize(ctx context.Context, raffleID, prizeID uuid.UUID, in PrizeInput) (*domain.Prize, error) {
	prize := &domain.Prize{ID: prizeID, RaffleID: raffleID, Position: in.Position, Name: in.Name, Description: in.Description}
	if err := s.prizes.Update(ctx, s.db, prize); err != nil {
		return nil, internal("update prize", err)
	}
	return prize, nil
}

func (s *RaffleService) DeletePrize(ctx context.Context, raffleID, prizeID uuid.UUID) error {
	if err := s.prizes.Delete(ctx, s.db, raffleID, prizeID); err != nil {
		return internal("delete prize", err)
	}
	return nil
}

// --- Price tiers ---

func (s *RaffleService) AddTier(ctx context.Context, raffleID uuid.UUID, in TierInput) (*domain.PriceTier, error) {
	if _, err := s.mustExist(ctx, raffleID); err != nil {
		return nil, err
	}
	tier := &domain.PriceTier{ID: uuid.New(), RaffleID: raffleID, Amount: in.Amount, TicketCount: in.TicketCount}
	if err := tier.Validate(); err != nil {
		return nil, err
	}
	if err := s.tiers.Create(ctx, s.db, tier); err != nil {
		return nil, internal("create price tier", err)
	}
	return tier, nil
}

// UpdateTier edits a tier that no purchase references yet.
func (s *RaffleService) UpdateTier(ctx context.Context, raffleID, tierID uuid.UUID, in TierInput) (*domain.PriceTier, error) {
	tier := &domain.PriceTier{ID: tierID, RaffleID: raffleID, Amount: in.Amount, TicketCount: in.TicketCount}
	if err := tier.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureTierUnused(ctx, tierID); err != nil {
		return nil, err
	}
	if err := s.tiers.Update(ctx, s.db, tier); err != nil {
		return nil, internal("update price tier", err)
	}
	return tier, nil
}

// DeleteTier removes a tier that no purchase references yet.
func (s *RaffleService) DeleteTier(ctx context.Context, raffleID, tierID uuid.UUID) error {
	if err := s.ensureTierUnused(ctx, tierID); err != nil {
		return err
	}
	if err := s.tiers.Delete(ctx, s.db, raffleID, tierID); err != nil {
		return internal("delete price tier", err)
	}
	return nil
}

func (s *RaffleService) ensureTierUnused(ctx context.Context, tierID uuid.UUID) error {
	used, err := s.tiers.UsedInPurchases(ctx, s.db, tierID)
	if err != nil {
		return domain.ErrInternal("check tier usage", err)
	}
	if used {
		return domain.ErrConflict("price tier is referenced by existing purchases")
	}
	return nil
}

func (s *RaffleService) mustExist(ctx context.Context, id uuid.UUID) (*domain.Raffle, error) {
	raffle, err := s.raffles.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, domain.ErrInternal("find raffle", err)
	}
	if raffle == nil {
		return nil, domain.ErrNotFound("raffle", id.String())
	}
	return raffle, nil
}
