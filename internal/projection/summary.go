package projection

import (
	"context"
	"time"

	"github.com/rafflio/platform/internal/domain"
)

const (
	summaryTTL = 30 * time.Second
	// SummaryKey holds the public list of active raffles.
	SummaryKey = "projection:raffles:active"
)

// PutSummaries caches the active raffle listing.
func PutSummaries(ctx context.Context, store Store, list []domain.RaffleSummary) error {
	return SetJSON(ctx, store, SummaryKey, list, summaryTTL)
}

// GetSummaries returns the cached listing or ErrMiss.
func GetSummaries(ctx context.Context, store Store) ([]domain.RaffleSummary, error) {
	var list []domain.RaffleSummary
	if err := GetJSON(ctx, store, SummaryKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// InvalidateSummaries drops the cached listing. Called whenever sold counts
// or raffle metadata change.
func InvalidateSummaries(ctx context.Context, store Store) error {
	return store.Delete(ctx, SummaryKey)
}
