package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
)

type purchaseRepo struct{}

// NewPurchaseRepository returns a pgx-backed PurchaseRepository.
func NewPurchaseRepository() PurchaseRepository {
	return &purchaseRepo{}
}

const purchaseColumns = `
	p.id, p.raffle_id, p.price_tier_id, p.full_name, p.email, p.phone, p.amount,
	p.ticket_count, p.payment_method, p.payment_id, p.preference_id, p.status,
	COALESCE((SELECT array_agg(t.number ORDER BY t.number) FROM tickets t WHERE t.purchase_id = p.id), '{}'),
	p.created_at, p.updated_at`

func (r *purchaseRepo) Create(ctx context.Context, db DBTX, p *domain.Purchase) error {
	err := db.QueryRow(ctx, `
		INSERT INTO purchases (id, raffle_id, price_tier_id, full_name, email, phone, amount,
			ticket_count, payment_method, payment_id, preference_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		p.ID, p.RaffleID, p.PriceTierID, p.FullName, p.Email, p.Phone,
		infra.Int64ToNumeric(p.Amount), p.TicketCount, string(p.PaymentMethod),
		p.PaymentID, p.PreferenceID, string(p.Status),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapPgError("insert purchase", err)
	}
	if p.TicketNumbers == nil {
		p.TicketNumbers = []int{}
	}
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Purchase, error) {
	row := db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases p WHERE p.id = $1`, id)
	return scanPurchase(row)
}

func (r *purchaseRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Purchase, error) {
	row := tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases p WHERE p.id = $1 FOR UPDATE OF p`, id)
	return scanPurchase(row)
}

func (r *purchaseRepo) TransitionStatus(ctx context.Context, db DBTX, id uuid.UUID, from []domain.PurchaseStatus, to domain.PurchaseStatus, paymentID *string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	prior := make([]string, len(from))
	for i, s := range from {
		prior[i] = string(s)
	}

	tag, err := db.Exec(ctx, `
		UPDATE purchases p
		SET status = $2, payment_id = COALESCE($3, p.payment_id), updated_at = now()
		WHERE p.id = $1
		  AND p.status = ANY($4::text[])
		  AND ($2 <> 'confirmed'
		       OR (SELECT count(*) FROM tickets t WHERE t.purchase_id = p.id) = p.ticket_count)`,
		id, string(to), paymentID, prior)
	if err != nil {
		return false, fmt.Errorf("transition purchase status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) SetPreference(ctx context.Context, db DBTX, id uuid.UUID, preferenceID string) error {
	tag, err := db.Exec(ctx,
		`UPDATE purchases SET preference_id = $2, updated_at = now() WHERE id = $1`, id, preferenceID)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("purchase", id.String())
	}
	return nil
}

func (r *purchaseRepo) List(ctx context.Context, db DBTX, f PurchaseFilter) ([]domain.Purchase, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := []string{"true"}
	args := []interface{}{}
	if f.RaffleID != nil {
		args = append(args, *f.RaffleID)
		where = append(where, fmt.Sprintf("p.raffle_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if f.Email != "" {
		args = append(args, strings.ToLower(f.Email))
		where = append(where, fmt.Sprintf("lower(p.email) = $%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(`
		SELECT %s FROM purchases p
		WHERE %s
		ORDER BY p.created_at DESC
		LIMIT $%d OFFSET $%d`,
		purchaseColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	purchases := []domain.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

func (r *purchaseRepo) TicketsHeldByEmail(ctx context.Context, db DBTX, raffleID uuid.UUID, email string) (int, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT COALESCE(sum(ticket_count), 0) FROM purchases
		WHERE raffle_id = $1 AND lower(email) = lower($2) AND status <> 'failed'`,
		raffleID, email).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum tickets held: %w", err)
	}
	return n, nil
}

func (r *purchaseRepo) TicketsCommitted(ctx context.Context, db DBTX, raffleID uuid.UUID) (int, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT COALESCE(sum(ticket_count), 0) FROM purchases
		WHERE raffle_id = $1 AND status <> 'failed'`, raffleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum tickets committed: %w", err)
	}
	return n, nil
}

func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	var p domain.Purchase
	var amount pgtype.Numeric
	var numbers []int32
	err := row.Scan(
		&p.ID, &p.RaffleID, &p.PriceTierID, &p.FullName, &p.Email, &p.Phone, &amount,
		&p.TicketCount, &p.PaymentMethod, &p.PaymentID, &p.PreferenceID, &p.Status,
		&numbers, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	if p.Amount, err = infra.NumericToInt64(amount); err != nil {
		return nil, fmt.Errorf("convert purchase amount: %w", err)
	}
	p.TicketNumbers = make([]int, len(numbers))
	for i, n := range numbers {
		p.TicketNumbers[i] = int(n)
	}
	return &p, nil
}
