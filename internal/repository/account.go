package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflio/platform/internal/domain"
)

type accountRepo struct{}

// NewAccountRepository returns a pgx-backed AccountRepository.
func NewAccountRepository() AccountRepository {
	return &accountRepo{}
}

func (r *accountRepo) List(ctx context.Context, db DBTX) ([]domain.Account, error) {
	rows, err := db.Query(ctx, `
		SELECT id, cbu, alias, titular, banco, email, whatsapp, created_at
		FROM accounts ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *accountRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Account, error) {
	row := db.QueryRow(ctx, `
		SELECT id, cbu, alias, titular, banco, email, whatsapp, created_at
		FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *accountRepo) Create(ctx context.Context, db DBTX, a *domain.Account) error {
	err := db.QueryRow(ctx, `
		INSERT INTO accounts (id, cbu, alias, titular, banco, email, whatsapp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		a.ID, a.CBU, a.Alias, a.Titular, a.Banco, a.Email, a.Whatsapp,
	).Scan(&a.CreatedAt)
	if err != nil {
		return mapPgError("insert account", err)
	}
	return nil
}

func (r *accountRepo) Update(ctx context.Context, db DBTX, a *domain.Account) error {
	tag, err := db.Exec(ctx, `
		UPDATE accounts SET cbu = $2, alias = $3, titular = $4, banco = $5, email = $6, whatsapp = $7
		WHERE id = $1`,
		a.ID, a.CBU, a.Alias, a.Titular, a.Banco, a.Email, a.Whatsapp)
	if err != nil {
		return mapPgError("update account", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("account", a.ID.String())
	}
	return nil
}

func (r *accountRepo) Delete(ctx context.Context, db DBTX, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("account", id.String())
	}
	return nil
}

func (r *accountRepo) Count(ctx context.Context, db DBTX) (int, error) {
	var n int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.CBU, &a.Alias, &a.Titular, &a.Banco, &a.Email, &a.Whatsapp, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
