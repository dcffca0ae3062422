package infra

import (
	"context"
	"log/slog"
	"time"
)

// BatchProcessor handles one batch of outbox rows and reports how many it took.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (int, error)
}

// OutboxPoller drives a BatchProcessor on a fixed interval.
type OutboxPoller struct {
	processor BatchProcessor
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(processor BatchProcessor, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		processor: processor,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll so a backlog drains without waiting for the ticker.
func (p *OutboxPoller) Run(ctx context.Context) error {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return nil
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *OutboxPoller) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := p.processor.ProcessBatch(ctx, p.batchSize)
		if err != nil {
			p.logger.Error("outbox poll error", "error", err)
			return
		}
		if n < p.batchSize {
			return
		}
	}
}
