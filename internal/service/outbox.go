package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
	"github.com/rafflio/platform/internal/notify"
	"github.com/rafflio/platform/internal/repository"
)

// EventPublisher sends one record to the event stream.
type EventPublisher interface {
	Enabled() bool
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxDispatcher claims outbox rows and fans them out to Kafka and, for
// email events, to the notifier. Rows are marked published before they are
// dispatched, so a failed send is logged and not retried.
type OutboxDispatcher struct {
	db       DB
	outbox   repository.OutboxRepository
	events   EventPublisher
	notifier notify.Notifier
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewOutboxDispatcher creates an OutboxDispatcher.
func NewOutboxDispatcher(
	db DB,
	outbox repository.OutboxRepository,
	events EventPublisher,
	notifier notify.Notifier,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *OutboxDispatcher {
	return &OutboxDispatcher{
		db:       db,
		outbox:   outbox,
		events:   events,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// ProcessBatch claims up to limit rows and dispatches them in order.
func (d *OutboxDispatcher) ProcessBatch(ctx context.Context, limit int) (int, error) {
	rows, err := d.outbox.ClaimBatch(ctx, d.db, limit)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		d.dispatch(ctx, row)
	}
	return len(rows), nil
}

func (d *OutboxDispatcher) dispatch(ctx context.Context, row domain.OutboxDraft) {
	result := "published"

	if d.events != nil && d.events.Enabled() {
		value, _ := json.Marshal(row)
		topic := infra.TopicFor(string(row.EventType))
		if err := d.events.Publish(ctx, topic, []byte(row.PartitionKey), value); err != nil {
			result = "failed"
			d.logger.Error("outbox publish failed", "error", err, "event_id", row.EventID, "topic", topic)
		}
	}

	if row.IsEmail() && d.notifier != nil {
		if err := d.sendEmail(ctx, row); err != nil {
			result = "failed"
			d.logger.Error("outbox email payload invalid", "error", err, "event_id", row.EventID)
		}
	}

	d.metrics.IncOutbox(result)
	d.logger.Debug("outbox event dispatched", "event_id", row.EventID, "type", row.EventType, "result", result)
}

func (d *OutboxDispatcher) sendEmail(ctx context.Context, row domain.OutboxDraft) error {
	switch row.EventType {
	case domain.EventPurchaseLinkEmail:
		var m domain.PurchaseLinkEmail
		if err := json.Unmarshal(row.Payload, &m); err != nil {
			return err
		}
		d.notifier.SendPurchaseLinkEmail(ctx, m.To, m.PurchaseID, m.Link)
	case domain.EventConfirmationEmail:
		var m domain.ConfirmationEmail
		if err := json.Unmarshal(row.Payload, &m); err != nil {
			return err
		}
		d.notifier.SendConfirmationEmail(ctx, m.To, m.PurchaseID, m.Numbers, m.Prizes)
	default:
		d.logger.Warn("unknown email event", "type", row.EventType)
	}
	return nil
}
