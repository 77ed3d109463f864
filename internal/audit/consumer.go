package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/moroccoguide/guide/internal/events"
)

const consumerName = "audit-persister"

// Inserter stores audit entries.
type Inserter interface {
	Insert(ctx context.Context, l *Log) error
}

// ConsumerSource provides the durable consumer to read from.
type ConsumerSource interface {
	EnsureConsumer(ctx context.Context, name, filterSubject string) (jetstream.Consumer, error)
}

// Consumer reads every event from the events stream and persists it.
type Consumer struct {
	repo   Inserter
	source ConsumerSource
}

func NewConsumer(repo Inserter, source ConsumerSource) *Consumer {
	return &Consumer{repo: repo, source: source}
}

// Start runs the fetch loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.source.EnsureConsumer(ctx, consumerName, events.SubjectAll)
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(events.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// ackNaker is the subset of jetstream.Msg the handler needs.
type ackNaker interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

func (c *Consumer) handle(ctx context.Context, msg ackNaker) {
	var evt events.Event
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		// Poison message, redelivery will not help.
		slog.Error("audit consumer: unmarshaling event", "error", err)
		_ = msg.Term()
		return
	}

	entry := toLog(evt)
	if err := c.repo.Insert(ctx, &entry); err != nil {
		slog.Error("audit consumer: persisting audit log", "error", err, "event_type", evt.Type)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	slog.Debug("audit consumer: persisted event", "event_type", evt.Type, "user_id", evt.UserID)
}

func toLog(evt events.Event) Log {
	l := Log{
		ID:           evt.ID,
		UserID:       evt.UserID,
		EventType:    evt.Type,
		Severity:     evt.Severity,
		ResourceType: evt.ResourceType,
		ResourceID:   evt.ResourceID,
		IPAddress:    evt.IPAddress,
		CreatedAt:    evt.Timestamp,
	}
	if l.Severity == "" {
		l.Severity = events.SeverityInfo
	}
	if len(evt.Details) > 0 {
		if data, err := json.Marshal(evt.Details); err == nil {
			l.Details = data
		}
	}
	return l
}
