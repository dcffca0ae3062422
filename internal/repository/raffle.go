package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflio/platform/internal/domain"
)

type raffleRepo struct{}

// NewRaffleRepository returns a pgx-backed RaffleRepository.
func NewRaffleRepository() RaffleRepository {
	return &raffleRepo{}
}

// sold_tickets is derived from the pool, never stored.
const raffleColumns = `
	r.id, r.title, r.description, r.draw_date, r.max_tickets, r.is_active,
	(SELECT count(*) FROM tickets t WHERE t.raffle_id = r.id AND t.status = 'sold'),
	r.created_at, r.updated_at`

func (r *raffleRepo) Create(ctx context.Context, db DBTX, raffle *domain.Raffle) error {
	err := db.QueryRow(ctx, `
		INSERT INTO raffles (id, title, description, draw_date, max_tickets, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		raffle.ID, raffle.Title, raffle.Description, raffle.DrawDate, raffle.MaxTickets, raffle.IsActive,
	).Scan(&raffle.CreatedAt, &raffle.UpdatedAt)
	if err != nil {
		return mapPgError("insert raffle", err)
	}
	return nil
}

func (r *raffleRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Raffle, error) {
	row := db.QueryRow(ctx, `SELECT `+raffleColumns+` FROM raffles r WHERE r.id = $1`, id)
	return scanRaffle(row)
}

func (r *raffleRepo) Update(ctx context.Context, db DBTX, raffle *domain.Raffle) error {
	tag, err := db.Exec(ctx, `
		UPDATE raffles SET title = $2, description = $3, draw_date = $4, max_tickets = $5,
			is_active = $6, updated_at = now()
		WHERE id = $1`,
		raffle.ID, raffle.Title, raffle.Description, raffle.DrawDate, raffle.MaxTickets, raffle.IsActive)
	if err != nil {
		return mapPgError("update raffle", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("raffle", raffle.ID.String())
	}
	return nil
}

func (r *raffleRepo) SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) error {
	tag, err := db.Exec(ctx,
		`UPDATE raffles SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set raffle active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("raffle", id.String())
	}
	return nil
}

func (r *raffleRepo) List(ctx context.Context, db DBTX, activeOnly bool) ([]domain.Raffle, error) {
	rows, err := db.Query(ctx, `
		SELECT `+raffleColumns+`
		FROM raffles r
		WHERE ($1 = false OR r.is_active)
		ORDER BY r.draw_date ASC, r.created_at ASC`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query raffles: %w", err)
	}
	defer rows.Close()

	var raffles []domain.Raffle
	for rows.Next() {
		raffle, err := scanRaffle(rows)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, *raffle)
	}
	return raffles, rows.Err()
}

func scanRaffle(row pgx.Row) (*domain.Raffle, error) {
	var r domain.Raffle
	err := row.Scan(&r.ID, &r.Title, &r.Description, &r.DrawDate, &r.MaxTickets, &r.IsActive,
		&r.SoldTickets, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan raffle: %w", err)
	}
	return &r, nil
}
