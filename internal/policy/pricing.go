package policy

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rafflio/platform/internal/domain"
)

// BundleUse records how many times a tier was applied in a quote.
type BundleUse struct {
	TierID      uuid.UUID `json:"tier_id"`
	TicketCount int       `json:"ticket_count"`
	Amount      int64     `json:"amount"`
	Times       int       `json:"times"`
}

// Quote is the price of an arbitrary ticket quantity.
type Quote struct {
	Quantity        int         `json:"quantity"`
	Amount          int64       `json:"amount"`
	Bundles         []BundleUse `json:"bundles"`
	Remainder       int         `json:"remainder"`
	RemainderAmount int64       `json:"remainder_amount"`
}

// QuoteQuantity prices quantity tickets greedily: the largest bundles are
// taken first, and whatever does not fit any bundle is charged at the per-unit
// rate of the smallest bundle. The result is not guaranteed to be the cheapest
// decomposition and callers rely on that exact output.
func QuoteQuantity(tiers []domain.PriceTier, quantity int) (Quote, error) {
	if quantity <= 0 {
		return Quote{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	usable := make([]domain.PriceTier, 0, len(tiers))
	for _, t := range tiers {
		if t.TicketCount > 0 && t.Amount >= 0 {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return Quote{}, fmt.Errorf("no price tiers configured")
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].TicketCount > usable[j].TicketCount
	})

	q := Quote{Quantity: quantity}
	left := quantity
	for _, t := range usable {
		times := left / t.TicketCount
		if times == 0 {
			continue
		}
		q.Bundles = append(q.Bundles, BundleUse{
			TierID:      t.ID,
			TicketCount: t.TicketCount,
			Amount:      t.Amount,
			Times:       times,
		})
		q.Amount += int64(times) * t.Amount
		left -= times * t.TicketCount
	}

	if left > 0 {
		smallest := usable[len(usable)-1]
		q.Remainder = left
		q.RemainderAmount = int64(left) * smallest.Amount / int64(smallest.TicketCount)
		q.Amount += q.RemainderAmount
	}

	return q, nil
}
