// Package events publishes domain events to NATS JetStream and provides the
// durable consumer plumbing used to process them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout bounds each batch fetch of a consumer loop.
const FetchTimeout = 2 * time.Second

const (
	StreamEvents  = "GUIDE_EVENTS"
	SubjectPrefix = "guide.events"
	SubjectAll    = SubjectPrefix + ".>"
)

// Event types.
const (
	TypeConversationAnswered = "conversation.answered"
	TypeConversationReset    = "conversation.reset"
	TypeConversationSaved    = "conversation.saved"
	TypeUserRegistered       = "user.registered"
	TypeQuotaExceeded        = "quota.exceeded"
)

// Severities.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Event is an auditable occurrence tied to a user.
type Event struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Type         string            `json:"type"`
	Severity     string            `json:"severity"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// New builds an info-level event with a fresh id and timestamp.
func New(userID uuid.UUID, eventType string, details map[string]string) Event {
	return Event{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      eventType,
		Severity:  SeverityInfo,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Subject returns the subject an event is published on.
func (e Event) Subject() string {
	return SubjectPrefix + "." + e.Type
}
