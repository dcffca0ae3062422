package reconcile

import (
	"context"
	"time"

	"github.com/rafflio/platform/internal/domain"
)

// PurchaseStore reads and updates purchase records. GetPurchase returns
// nil, nil when the purchase does not exist. UpdateStatus must be idempotent.
type PurchaseStore interface {
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	UpdateStatus(ctx context.Context, id string, status domain.PurchaseStatus, paymentID string) error
}

// Gateway queries the payment provider. Both lookups return nil, nil when
// the provider has no such record.
type Gateway interface {
	GetPayment(ctx context.Context, id string) (*domain.PaymentInfo, error)
	GetPreference(ctx context.Context, id string) (*domain.Preference, error)
}

// PushChannel delivers payment status events for a purchase.
type PushChannel interface {
	Subscribe(purchaseID string, fn func(domain.PushEvent)) (func(), error)
}

// Ticker is the subset of time.Ticker the engine needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests substitute a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

type realTicker struct{ t *time.Ticker }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
