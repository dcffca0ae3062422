package domain

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus tracks the purchase lifecycle.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchasePaid      PurchaseStatus = "paid"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseConfirmed PurchaseStatus = "confirmed"
)

// PaymentMethod is how the buyer pays.
type PaymentMethod string

const (
	MethodMercadoPago  PaymentMethod = "mercadopago"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCash         PaymentMethod = "cash"
)

// CustomTier is the wire sentinel for quantities priced outside any tier.
const CustomTier = "custom"

// Purchase is a purchases row. PriceTierID nil means a custom quantity.
type Purchase struct {
	ID            uuid.UUID      `json:"id"`
	RaffleID      uuid.UUID      `json:"raffle_id"`
	PriceTierID   *uuid.UUID     `json:"price_tier_id,omitempty"`
	FullName      string         `json:"full_name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	Amount        int64          `json:"amount"`
	TicketCount   int            `json:"ticket_count"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	PaymentID     *string        `json:"payment_id,omitempty"`
	PreferenceID  *string        `json:"preference_id,omitempty"`
	Status        PurchaseStatus `json:"status"`
	TicketNumbers []int          `json:"ticket_numbers"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsCustom reports whether the purchase was priced outside any tier.
func (p *Purchase) IsCustom() bool { return p.PriceTierID == nil }

// FullyAssigned reports whether the purchase owns exactly TicketCount tickets.
func (p *Purchase) FullyAssigned() bool { return len(p.TicketNumbers) == p.TicketCount }

// transitions lists the allowed prior states for each target state.
var transitions = map[PurchaseStatus][]PurchaseStatus{
	PurchasePaid:      {PurchasePending},
	PurchaseFailed:    {PurchasePending},
	PurchaseConfirmed: {PurchasePaid},
}

// PriorStatuses returns the states a purchase may be in to move to s.
func PriorStatuses(s PurchaseStatus) []PurchaseStatus {
	return transitions[s]
}

// CanTransitionTo reports whether from -> to is an edge of the status machine.
func (s PurchaseStatus) CanTransitionTo(to PurchaseStatus) bool {
	for _, prior := range transitions[to] {
		if prior == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transitions apply.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseFailed || s == PurchaseConfirmed
}

// Valid reports whether s is a known status.
func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePending, PurchasePaid, PurchaseFailed, PurchaseConfirmed:
		return true
	}
	return false
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodMercadoPago, MethodBankTransfer, MethodCash:
		return true
	}
	return false
}
