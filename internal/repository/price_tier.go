package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
)

type priceTierRepo struct{}

// NewPriceTierRepository returns a pgx-backed PriceTierRepository.
func NewPriceTierRepository() PriceTierRepository {
	return &priceTierRepo{}
}

func (r *priceTierRepo) ListByRaffle(ctx context.Context, db DBTX, raffleID uuid.UUID) ([]domain.PriceTier, error) {
	rows, err := db.Query(ctx, `
		SELECT id, raffle_id, amount, ticket_count
		FROM price_tiers WHERE raffle_id = $1
		ORDER BY ticket_count ASC`, raffleID)
	if err != nil {
		return nil, fmt.Errorf("query price tiers: %w", err)
	}
	defer rows.Close()

	var tiers []domain.PriceTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, *t)
	}
	return tiers, rows.Err()
}

func (r *priceTierRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PriceTier, error) {
	row := db.QueryRow(ctx, `
		SELECT id, raffle_id, amount, ticket_count FROM price_tiers WHERE id = $1`, id)
	return scanTier(row)
}

func (r *priceTierRepo) Create(ctx context.Context, db DBTX, t *domain.PriceTier) error {
	_, err := db.Exec(ctx, `
		INSERT INTO price_tiers (id, raffle_id, amount, ticket_count)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.RaffleID, infra.Int64ToNumeric(t.Amount), t.TicketCount)
	if err != nil {
		return mapPgError("insert price tier", err)
	}
	return nil
}

func (r *priceTierRepo) Update(ctx context.Context, db DBTX, t *domain.PriceTier) error {
	tag, err := db.Exec(ctx, `
		UPDATE price_tiers SET amount = $3, ticket_count = $4
		WHERE id = $1 AND raffle_id = $2`,
		t.ID, t.RaffleID, infra.Int64ToNumeric(t.Amount), t.TicketCount)
	if err != nil {
		return mapPgError("update price tier", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("price tier", t.ID.String())
	}
	return nil
}

func (r *priceTierRepo) Delete(ctx context.Context, db DBTX, raffleID, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `DELETE FROM price_tiers WHERE id = $1 AND raffle_id = $2`, id, raffleID)
	if err != nil {
		return mapPgError("delete price tier", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("price tier", id.String())
	}
	return nil
}

func (r *priceTierRepo) UsedInPurchases(ctx context.Context, db DBTX, id uuid.UUID) (bool, error) {
	var used bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE price_tier_id = $1)`, id).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check tier usage: %w", err)
	}
	return used, nil
}

func scanTier(row pgx.Row) (*domain.PriceTier, error) {
	var t domain.PriceTier
	var amount pgtype.Numeric
	err := row.Scan(&t.ID, &t.RaffleID, &amount, &t.TicketCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan price tier: %w", err)
	}
	if t.Amount, err = infra.NumericToInt64(amount); err != nil {
		return nil, fmt.Errorf("convert tier amount: %w", err)
	}
	return &t, nil
}
