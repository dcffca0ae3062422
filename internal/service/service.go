// Package service holds the business operations. Services own the database
// handle, open transactions, and write outbox rows in the same transaction
// as the state change they describe.
package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/repository"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PushPublisher sends status events to push subscribers.
type PushPublisher interface {
	Publish(ctx context.Context, evt domain.PushEvent) error
}

// Gateway is the MercadoPago surface the services use.
type Gateway interface {
	Enabled() bool
	GetPayment(ctx context.Context, id string) (*domain.PaymentInfo, error)
	GetPreference(ctx context.Context, id string) (*domain.Preference, error)
	GetMerchantOrder(ctx context.Context, id string) (*domain.MerchantOrder, error)
	CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error)
}

// inTx runs fn in a transaction and commits when it returns nil.
func inTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal("commit tx", err)
	}
	return nil
}

// internal wraps non-AppErrors so handlers render them as 500s with context.
func internal(msg string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.ErrInternal(msg, err)
}
