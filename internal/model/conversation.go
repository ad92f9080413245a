// Package model defines data structures for the sales agent webhook service.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one entry of a conversation's message log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive      ConversationStatus = "active"
	ConversationCompleted   ConversationStatus = "completed"
	ConversationTransferred ConversationStatus = "transferred"
)

// Valid reports whether s is a known conversation status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationCompleted, ConversationTransferred:
		return true
	}
	return false
}

// Conversation is the thread between one customer and one agent.
// CustomerPhone carries the customer identity for every channel: a phone
// number, a website session id or a telegram chat id.
type Conversation struct {
	ID            string             `json:"id"`
	TenantID      string             `json:"tenant_id,omitempty"`
	AgentID       string             `json:"agent_id"`
	Channel       ChannelType        `json:"channel"`
	CustomerPhone string             `json:"customer_phone"`
	CustomerName  string             `json:"customer_name,omitempty"`
	Messages      []Message          `json:"messages"`
	Status        ConversationStatus `json:"status"`
	Version       int                `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Clone returns a copy that shares no message storage with c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return &out
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// UpdateConversationStatusRequest is the request to move a conversation out of (or back into) active.
type UpdateConversationStatusRequest struct {
	Status ConversationStatus `json:"status"`
}
