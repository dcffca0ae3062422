package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
)

// tailTopics maps the short names accepted by `events tail` to topics.
var tailTopics = map[string]domain.EventType{
	"created":   domain.EventPurchaseCreated,
	"status":    domain.EventPurchaseStatusChanged,
	"claimed":   domain.EventTicketsClaimed,
	"released":  domain.EventTicketsReleased,
	"link":      domain.EventPurchaseLinkEmail,
	"confirmed": domain.EventConfirmationEmail,
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the outbox event stream",
	}

	tail := &cobra.Command{
		Use:   "tail [topic]",
		Short: "Print events from a Kafka topic as JSON lines",
		Long: `Print events published by the outbox dispatcher. topic is a full topic name
or one of: created, status, claimed, released, link, confirmed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTail,
	}
	tail.Flags().String("group", "rafflio-cli", "consumer group")
	cmd.AddCommand(tail)

	return cmd
}

func runTail(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	group, _ := cmd.Flags().GetString("group")

	topic := string(domain.EventPurchaseStatusChanged)
	if len(args) == 1 {
		topic = args[0]
		if t, ok := tailTopics[topic]; ok {
			topic = string(t)
		}
	}
	topic = infra.TopicFor(topic)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, group, cfg.KafkaEnabled, logger)
	defer consumer.Close()

	logger.Info("tailing events", "topic", topic, "group", group)
	out := json.NewEncoder(cmd.OutOrStdout())
	ctx := cmd.Context()
	for {
		msg, err := consumer.ReadMessage(ctx)
		if errors.Is(err, infra.ErrKafkaDisabled) {
			return fmt.Errorf("kafka is disabled: set KAFKA_ENABLED=true and KAFKA_BROKERS")
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}

		var row domain.OutboxDraft
		if err := json.Unmarshal(msg.Value, &row); err != nil {
			logger.Warn("skipping undecodable event", "offset", msg.Offset, "error", err)
			continue
		}
		if err := out.Encode(row); err != nil {
			return err
		}
	}
}
