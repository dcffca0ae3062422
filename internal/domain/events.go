package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID string, evt EventType, payload interface{}) OutboxDraft {
	raw, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  aggID,
		Headers:       json.RawMessage(`{}`),
		Payload:       raw,
		OccurredAt:    time.Now(),
	}
}

// NewPurchaseCreatedEvent records a new purchase.
func NewPurchaseCreatedEvent(p *Purchase) OutboxDraft {
	return newDraft(AggregatePurchase, p.ID.String(), EventPurchaseCreated, map[string]interface{}{
		"purchase_id":    p.ID.String(),
		"raffle_id":      p.RaffleID.String(),
		"ticket_count":   p.TicketCount,
		"amount":         p.Amount,
		"payment_method": p.PaymentMethod,
	})
}

// NewStatusChangedEvent records a purchase status transition.
func NewStatusChangedEvent(purchaseID uuid.UUID, from, to PurchaseStatus) OutboxDraft {
	return newDraft(AggregatePurchase, purchaseID.String(), EventPurchaseStatusChanged, map[string]string{
		"purchase_id": purchaseID.String(),
		"from":        string(from),
		"to":          string(to),
	})
}

// NewTicketsClaimedEvent records numbers assigned to a purchase.
func NewTicketsClaimedEvent(raffleID, purchaseID uuid.UUID, numbers []int) OutboxDraft {
	return newDraft(AggregateRaffle, raffleID.String(), EventTicketsClaimed, map[string]interface{}{
		"raffle_id":   raffleID.String(),
		"purchase_id": purchaseID.String(),
		"numbers":     numbers,
	})
}

// NewTicketsReleasedEvent records numbers returned to the pool.
func NewTicketsReleasedEvent(raffleID, purchaseID uuid.UUID, count int) OutboxDraft {
	return newDraft(AggregateRaffle, raffleID.String(), EventTicketsReleased, map[string]interface{}{
		"raffle_id":   raffleID.String(),
		"purchase_id": purchaseID.String(),
		"count":       count,
	})
}

// NewPurchaseLinkEmailEvent asks the dispatcher to send the purchase link.
func NewPurchaseLinkEmailEvent(p *Purchase, link string) OutboxDraft {
	return newDraft(AggregateEmail, p.ID.String(), EventPurchaseLinkEmail, PurchaseLinkEmail{
		To:         p.Email,
		PurchaseID: p.ID.String(),
		Link:       link,
	})
}

// NewConfirmationEmailEvent asks the dispatcher to send the confirmation with
// the selected numbers and the raffle's prize list.
func NewConfirmationEmailEvent(p *Purchase, raffleTitle string, numbers []int, prizes []Prize) OutboxDraft {
	names := make([]string, 0, len(prizes))
	for _, pr := range prizes {
		names = append(names, pr.Name)
	}
	return newDraft(AggregateEmail, p.ID.String(), EventConfirmationEmail, ConfirmationEmail{
		To:          p.Email,
		PurchaseID:  p.ID.String(),
		RaffleTitle: raffleTitle,
		Numbers:     numbers,
		Prizes:      names,
	})
}
