package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rafflio/platform/internal/domain"
)

type outboxRepo struct{}

// NewOutboxRepository returns a pgx-backed OutboxRepository.
func NewOutboxRepository() OutboxRepository {
	return &outboxRepo{}
}

// Insert writes an outbox event using the camelCase column names.
func (r *outboxRepo) Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error {
	headers := draft.Headers
	if len(headers) == 0 {
		headers = json.RawMessage(`{}`)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO event_outbox
		  ("eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "headers", "payload", "occurredAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		draft.EventID,
		string(draft.AggregateType),
		draft.AggregateID,
		string(draft.EventType),
		draft.PartitionKey,
		headers,
		draft.Payload,
		draft.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ClaimBatch marks rows published before they are dispatched, so a crash
// mid-dispatch loses the event rather than repeating it.
func (r *outboxRepo) ClaimBatch(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error) {
	rows, err := db.Query(ctx, `
		WITH batch AS (
			SELECT "id" FROM event_outbox
			WHERE "publishedAt" IS NULL
			ORDER BY "id" ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE event_outbox o SET "publishedAt" = now()
		FROM batch
		WHERE o."id" = batch."id"
		RETURNING o."id", o."eventId", o."aggregateType", o."aggregateId", o."eventType",
		          o."partitionKey", o."headers", o."payload", o."occurredAt"`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxDraft
	for rows.Next() {
		var d domain.OutboxDraft
		err := rows.Scan(&d.SeqID, &d.EventID, &d.AggregateType, &d.AggregateID,
			&d.EventType, &d.PartitionKey, &d.Headers, &d.Payload, &d.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortBySeq(events)
	return events, nil
}

func (r *outboxRepo) CountUnpublished(ctx context.Context, db DBTX) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT count(*) FROM event_outbox WHERE "publishedAt" IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unpublished: %w", err)
	}
	return n, nil
}

func sortBySeq(events []domain.OutboxDraft) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].SeqID < events[j-1].SeqID; j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}
