package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeConversationCreated EventType = "created"
	EventTypeMessageAppended     EventType = "message"
	EventTypeStatusChanged       EventType = "status"
)

// ConversationEvent is published for inbox consumers whenever a conversation changes.
type ConversationEvent struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	TenantID       string             `json:"tenant_id"`
	AgentID        string             `json:"agent_id"`
	Channel        ChannelType        `json:"channel"`
	Type           EventType          `json:"type"`
	Message        *Message           `json:"message,omitempty"`
	Status         ConversationStatus `json:"status,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}
