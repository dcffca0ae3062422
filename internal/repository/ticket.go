package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
)

type ticketRepo struct{}

// NewTicketRepository returns a pgx-backed TicketRepository.
func NewTicketRepository() TicketRepository {
	return &ticketRepo{}
}

func (r *ticketRepo) CreatePool(ctx context.Context, db DBTX, raffleID uuid.UUID, maxTickets int) error {
	_, err := db.Exec(ctx, `
		INSERT INTO tickets (raffle_id, number)
		SELECT $1, n FROM generate_series(1, $2::int) AS n`, raffleID, maxTickets)
	if err != nil {
		return mapPgError("create ticket pool", err)
	}
	return nil
}

func (r *ticketRepo) ExtendPool(ctx context.Context, db DBTX, raffleID uuid.UUID, maxTickets int) error {
	_, err := db.Exec(ctx, `
		INSERT INTO tickets (raffle_id, number)
		SELECT $1, n FROM generate_series(1, $2::int) AS n
		ON CONFLICT (raffle_id, number) DO NOTHING`, raffleID, maxTickets)
	if err != nil {
		return fmt.Errorf("extend ticket pool: %w", err)
	}
	return nil
}

func (r *ticketRepo) ListByRaffle(ctx context.Context, db DBTX, raffleID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := db.Query(ctx, `
		SELECT id, raffle_id, number, status, purchase_id, updated_at
		FROM tickets WHERE raffle_id = $1
		ORDER BY number ASC`, raffleID)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.RaffleID, &t.Number, &t.Status, &t.PurchaseID, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *ticketRepo) CountAvailable(ctx context.Context, db DBTX, raffleID uuid.UUID) (int, error) {
	var n int
	err := db.QueryRow(ctx,
		`SELECT count(*) FROM tickets WHERE raffle_id = $1 AND status = 'available'`, raffleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available tickets: %w", err)
	}
	return n, nil
}

func (r *ticketRepo) NumbersByPurchase(ctx context.Context, db DBTX, purchaseID uuid.UUID) ([]int, error) {
	rows, err := db.Query(ctx,
		`SELECT number FROM tickets WHERE purchase_id = $1 ORDER BY number ASC`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("query purchase tickets: %w", err)
	}
	return collectNumbers(rows)
}

// Claim locks the requested available rows in id order and updates them only
// when every one of them was found, so two overlapping claims can never
// split a set between them.
func (r *ticketRepo) Claim(ctx context.Context, db DBTX, raffleID, purchaseID uuid.UUID, ticketIDs []uuid.UUID) ([]int, error) {
	ids := uniqueIDs(ticketIDs)
	if len(ids) == 0 {
		return nil, domain.ErrValidation("no tickets requested")
	}

	rows, err := db.Query(ctx, `
		WITH target AS (
			SELECT id FROM tickets
			WHERE id = ANY($2::uuid[])
			  AND raffle_id = $3
			  AND status = 'available'
			  AND purchase_id IS NULL
			ORDER BY id
			FOR UPDATE
		)
		UPDATE tickets t
		SET status = 'sold', purchase_id = $1, updated_at = now()
		FROM target
		WHERE t.id = target.id
		  AND (SELECT count(*) FROM target) = cardinality($2::uuid[])
		RETURNING t.number`,
		purchaseID, ids, raffleID)
	if err != nil {
		return nil, fmt.Errorf("claim tickets: %w", err)
	}
	numbers, err := collectNumbers(rows)
	if err != nil {
		return nil, err
	}
	if len(numbers) != len(ids) {
		return nil, domain.ErrTicketsUnavailable()
	}
	return numbers, nil
}

func (r *ticketRepo) Release(ctx context.Context, db DBTX, purchaseID uuid.UUID, ticketIDs []uuid.UUID) ([]int, error) {
	ids := uniqueIDs(ticketIDs)
	rows, err := db.Query(ctx, `
		WITH target AS (
			SELECT id FROM tickets
			WHERE purchase_id = $1
			  AND status = 'sold'
			  AND (cardinality($2::uuid[]) = 0 OR id = ANY($2::uuid[]))
			ORDER BY id
			FOR UPDATE
		)
		UPDATE tickets t
		SET status = 'available', purchase_id = NULL, updated_at = now()
		FROM target
		WHERE t.id = target.id
		  AND (cardinality($2::uuid[]) = 0 OR (SELECT count(*) FROM target) = cardinality($2::uuid[]))
		RETURNING t.number`,
		purchaseID, ids)
	if err != nil {
		return nil, fmt.Errorf("release tickets: %w", err)
	}
	numbers, err := collectNumbers(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 && len(numbers) != len(ids) {
		return nil, domain.ErrConflict("tickets are not all held by this purchase")
	}
	return numbers, nil
}

type numberRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close()
}

func collectNumbers(rows numberRows) ([]int, error) {
	defer rows.Close()
	numbers := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan ticket number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Ints(numbers)
	return numbers, nil
}

// uniqueIDs drops duplicates and encodes the IDs as strings for the uuid[] cast.
func uniqueIDs(ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id.String())
		}
	}
	return out
}
