package domain

import (
	"time"

	"github.com/google/uuid"
)

// Raffle is a raffles row together with its prizes and price tiers.
// SoldTickets is always computed from the ticket pool.
type Raffle struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	DrawDate    time.Time   `json:"draw_date"`
	MaxTickets  int         `json:"max_tickets"`
	IsActive    bool        `json:"is_active"`
	SoldTickets int         `json:"sold_tickets"`
	Prizes      []Prize     `json:"prizes,omitempty"`
	PriceTiers  []PriceTier `json:"price_tiers,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Prize is one entry of a raffle's ordered prize list.
type Prize struct {
	ID          uuid.UUID `json:"id"`
	RaffleID    uuid.UUID `json:"raffle_id"`
	Position    int       `json:"position"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

// PriceTier is a ticket bundle: TicketCount tickets for Amount (minor units).
type PriceTier struct {
	ID          uuid.UUID `json:"id"`
	RaffleID    uuid.UUID `json:"raffle_id"`
	Amount      int64     `json:"amount"`
	TicketCount int       `json:"ticket_count"`
}

// Validate checks the tier invariants.
func (t PriceTier) Validate() error {
	if t.TicketCount <= 0 {
		return ErrValidation("ticket_count must be positive")
	}
	if t.Amount < 0 {
		return ErrValidation("amount must not be negative")
	}
	return nil
}

// RaffleSummary is the cached public listing view of a raffle.
type RaffleSummary struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	DrawDate    time.Time `json:"draw_date"`
	MaxTickets  int       `json:"max_tickets"`
	SoldTickets int       `json:"sold_tickets"`
}
