package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
)

type prizeRepo struct{}

// NewPrizeRepository returns a pgx-backed PrizeRepository.
func NewPrizeRepository() PrizeRepository {
	return &prizeRepo{}
}

func (r *prizeRepo) ListByRaffle(ctx context.Context, db DBTX, raffleID uuid.UUID) ([]domain.Prize, error) {
	rows, err := db.Query(ctx, `
		SELECT id, raffle_id, position, name, description
		FROM prizes WHERE raffle_id = $1
		ORDER BY position ASC`, raffleID)
	if err != nil {
		return nil, fmt.Errorf("query prizes: %w", err)
	}
	defer rows.Close()

	var prizes []domain.Prize
	for rows.Next() {
		var p domain.Prize
		if err := rows.Scan(&p.ID, &p.RaffleID, &p.Position, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan prize: %w", err)
		}
		prizes = append(prizes, p)
	}
	return prizes, rows.Err()
}

func (r *prizeRepo) Create(ctx context.Context, db DBTX, p *domain.Prize) error {
	_, err := db.Exec(ctx, `
		INSERT INTO prizes (id, raffle_id, position, name, description)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.RaffleID, p.Position, p.Name, p.Description)
	if err != nil {
		return mapPgError("insert prize", err)
	}
	return nil
}

func (r *prizeRepo) Update(ctx context.Context, db DBTX, p *domain.Prize) error {
	tag, err := db.Exec(ctx, `
		UPDATE prizes SET position = $3, name = $4, description = $5
		WHERE id = $1 AND raffle_id = $2`,
		p.ID, p.RaffleID, p.Position, p.Name, p.Description)
	if err != nil {
		return mapPgError("update prize", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("prize", p.ID.String())
	}
	return nil
}

func (r *prizeRepo) Delete(ctx context.Context, db DBTX, raffleID, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `DELETE FROM prizes WHERE id = $1 AND raffle_id = $2`, id, raffleID)
	if err != nil {
		return fmt.Errorf("delete prize: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("prize", id.String())
	}
	return nil
}
