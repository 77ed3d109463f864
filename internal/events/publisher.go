package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// Sink accepts events.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// Publisher writes events to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", evt.Type, err)
	}
	// The event id doubles as the JetStream dedupe id.
	_, err = p.js.Publish(ctx, evt.Subject(), payload, jetstream.WithMsgID(evt.ID.String()))
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", evt.Subject(), err)
	}
	return nil
}

// Nop discards events. Used when NATS is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes evt and logs a failure instead of returning it. A failed
// publish never fails the request that produced the event.
func Emit(ctx context.Context, sink Sink, evt Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, evt); err != nil {
		slog.Warn("publishing event failed", "type", evt.Type, "user_id", evt.UserID, "error", err)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the types of recorded events in order.
func (r *Recorder) Types() []string {
	evts := r.Events()
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Type
	}
	return out
}
