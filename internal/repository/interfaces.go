package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rafflio/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// RaffleRepository provides access to raffles.
type RaffleRepository interface {
	Create(ctx context.Context, db DBTX, raffle *domain.Raffle) error

	// FindByID returns the raffle with its sold count, without prizes or tiers.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Raffle, error)

	Update(ctx context.Context, db DBTX, raffle *domain.Raffle) error
	SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) error

	// List returns raffles ordered by draw date. activeOnly hides inactive ones.
	List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.Raffle, error)
}

// PrizeRepository provides access to prizes.
type PrizeRepository interface {
	ListByRaffle(ctx context.Context, db DBTX, raffleID uuid.UUID) ([]domain.Prize, error)
	Create(ctx context.Context, db DBTX, prize *domain.Prize) error
	Update(ctx context.Context, db DBTX, prize *domain.Prize) error
	Delete(ctx context.Context, db DBTX, raffleID, id uuid.UUID) error
}

// PriceTierRepository provides access to price_tiers.
type PriceTierRepository interface {
	ListByRaffle(ctx context.Context, db DBTX, raffleID uuid.UUID) ([]domain.PriceTier, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PriceTier, error)
	Create(ctx context.Context, db DBTX, tier *domain.PriceTier) error
	Update(ctx context.Context, db DBTX, tier *domain.PriceTier) error
	Delete(ctx context.Context, db DBTX, raffleID, id uuid.UUID) error

	// UsedInPurchases reports whether any purchase references the tier.
	UsedInPurchases(ctx context.Context, db DBTX, id uuid.UUID) (bool, error)
}

// TicketRepository provides access to the ticket pool.
type TicketRepository interface {
	// CreatePool inserts tickets numbered 1..maxTickets, all available.
	CreatePool(ctx context.Context, db DBTX, raffleID uuid.UUID, maxTickets int) error

	// ExtendPool adds available tickets up to maxTickets.
	ExtendPool(ctx context.Context, db DBTX, raffleID uuid.UUID, maxTickets int) error

	ListByRaffle(ctx context.Context, db DBTX, raffleID uuid.UUID) ([]domain.Ticket, error)
	CountAvailable(ctx context.Context, db DBTX, raffleID uuid.UUID) (int, error)
	NumbersByPurchase(ctx context.Context, db DBTX, purchaseID uuid.UUID) ([]int, error)

	// Claim moves every listed ticket from available to sold for purchaseID
	// in one statement, or none of them. It returns the claimed numbers or
	// ErrTicketsUnavailable.
	Claim(ctx context.Context, db DBTX, raffleID, purchaseID uuid.UUID, ticketIDs []uuid.UUID) ([]int, error)

	// Release returns tickets owned by purchaseID to the pool. An empty
	// ticketIDs releases all of them.
	Release(ctx context.Context, db DBTX, purchaseID uuid.UUID, ticketIDs []uuid.UUID) ([]int, error)
}

// PurchaseFilter narrows PurchaseRepository.List.
type PurchaseFilter struct {
	RaffleID *uuid.UUID
	Status   *domain.PurchaseStatus
	Email    string
	Limit    int
	Offset   int
}

// PurchaseRepository provides access to purchases.
type PurchaseRepository interface {
	Create(ctx context.Context, db DBTX, purchase *domain.Purchase) error

	// FindByID returns the purchase with its ticket numbers.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Purchase, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the purchase.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Purchase, error)

	// TransitionStatus writes status only if the current status is one of
	// from. Moving to confirmed additionally requires the purchase to own
	// exactly ticket_count tickets. Reports whether the row changed.
	TransitionStatus(ctx context.Context, db DBTX, id uuid.UUID, from []domain.PurchaseStatus, to domain.PurchaseStatus, paymentID *string) (bool, error)

	SetPreference(ctx context.Context, db DBTX, id uuid.UUID, preferenceID string) error
	List(ctx context.Context, db DBTX, filter PurchaseFilter) ([]domain.Purchase, error)

	// TicketsHeldByEmail sums ticket_count over the buyer's non-failed
	// purchases in a raffle.
	TicketsHeldByEmail(ctx context.Context, db DBTX, raffleID uuid.UUID, email string) (int, error)

	// TicketsCommitted sums ticket_count over all non-failed purchases.
	TicketsCommitted(ctx context.Context, db DBTX, raffleID uuid.UUID) (int, error)
}

// AccountRepository provides access to bank transfer accounts.
type AccountRepository interface {
	List(ctx context.Context, db DBTX) ([]domain.Account, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Account, error)
	Create(ctx context.Context, db DBTX, account *domain.Account) error
	Update(ctx context.Context, db DBTX, account *domain.Account) error
	Delete(ctx context.Context, db DBTX, id uuid.UUID) error
	Count(ctx context.Context, db DBTX) (int, error)
}

// AdminUserRepository provides access to admin_users.
type AdminUserRepository interface {
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.AdminUser, error)
	Create(ctx context.Context, db DBTX, user *domain.AdminUser) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event in the caller's transaction.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// ClaimBatch marks up to limit unpublished rows as published and returns
	// them. Rows locked by another poller are skipped.
	ClaimBatch(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// CountUnpublished returns the backlog size.
	CountUnpublished(ctx context.Context, db DBTX) (int, error)
}
