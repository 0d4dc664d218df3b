package models

import (
	"encoding/json"
	"time"
)

// EventKind enumerates the workflow-lifecycle events delivered to clients.
type EventKind string

const (
	EventWebhookReceived    EventKind = "webhook_received"
	EventExecutionStarted   EventKind = "execution_started"
	EventExecutionCompleted EventKind = "execution_completed"
	EventExecutionFailed    EventKind = "execution_failed"
)

// WorkflowEvent is a lifecycle notification produced by the workflow engine.
// Events carry their own id so clients can tolerate duplicate delivery; the
// broker path is at-least-once.
type WorkflowEvent struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Kind       EventKind       `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"timestamp"`
}

// ChannelToken is a short-lived credential scoping one client to one channel.
// It is never persisted; verification is purely signature plus expiry.
type ChannelToken struct {
	Token     string      `json:"token"`
	Channel   ChannelName `json:"channel"`
	ExpiresAt time.Time   `json:"expires_at"`
}
