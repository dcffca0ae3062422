package domain

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the pool state of a numbered ticket.
type TicketStatus string

const (
	TicketAvailable TicketStatus = "available"
	TicketReserved  TicketStatus = "reserved"
	TicketSold      TicketStatus = "sold"
)

// Ticket is a tickets row. PurchaseID is set iff Status != available.
type Ticket struct {
	ID         uuid.UUID    `json:"id"`
	RaffleID   uuid.UUID    `json:"raffle_id"`
	Number     int          `json:"number"`
	Status     TicketStatus `json:"status"`
	PurchaseID *uuid.UUID   `json:"purchase_id,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Consistent reports whether status and owner agree.
func (t Ticket) Consistent() bool {
	if t.Status == TicketAvailable {
		return t.PurchaseID == nil
	}
	return t.PurchaseID != nil
}

// ClaimResult is returned after tickets are assigned to a purchase.
type ClaimResult struct {
	PurchaseID uuid.UUID      `json:"purchase_id"`
	Status     PurchaseStatus `json:"status"`
	Numbers    []int          `json:"numbers"`
	Confirmed  bool           `json:"confirmed"`
}
