package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventPurchaseCreated       EventType = "rafflio.purchase.created"
	EventPurchaseStatusChanged EventType = "rafflio.purchase.status_changed"
	EventTicketsClaimed        EventType = "rafflio.tickets.claimed"
	EventTicketsReleased       EventType = "rafflio.tickets.released"
	EventPurchaseLinkEmail     EventType = "rafflio.email.purchase_link"
	EventConfirmationEmail     EventType = "rafflio.email.confirmation"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregatePurchase AggregateType = "purchase"
	AggregateRaffle   AggregateType = "raffle"
	AggregateEmail    AggregateType = "email"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// IsEmail reports whether the event asks for an email to be sent.
func (d OutboxDraft) IsEmail() bool {
	return d.AggregateType == AggregateEmail
}

// PurchaseLinkEmail is the payload of EventPurchaseLinkEmail.
type PurchaseLinkEmail struct {
	To         string `json:"to"`
	PurchaseID string `json:"purchase_id"`
	Link       string `json:"link"`
}

// ConfirmationEmail is the payload of EventConfirmationEmail.
type ConfirmationEmail struct {
	To          string   `json:"to"`
	PurchaseID  string   `json:"purchase_id"`
	RaffleTitle string   `json:"raffle_title"`
	Numbers     []int    `json:"numbers"`
	Prizes      []string `json:"prizes"`
}
