// Package store provides the entity store for channels and conversations.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when an update's expected version no
	// longer matches the stored record.
	ErrVersionConflict = errors.New("version conflict")
)

// ChannelFilter selects channels. Empty fields match everything.
type ChannelFilter struct {
	TenantID string
	AgentID  string
	Type     model.ChannelType
}

// ConversationFilter selects conversations. Empty fields match everything.
// Results are ordered newest first.
type ConversationFilter struct {
	TenantID      string
	AgentID       string
	CustomerPhone string
	Status        model.ConversationStatus
	Limit         int
}

// ConversationUpdate is a partial conversation record. A nil Messages or an
// empty Status leaves the stored value unchanged. Messages replaces the whole list.
type ConversationUpdate struct {
	Messages []model.Message
	Status   model.ConversationStatus
}

// ChannelStore persists channels.
type ChannelStore interface {
	FilterChannels(ctx context.Context, f ChannelFilter) ([]model.Channel, error)
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	CreateChannel(ctx context.Context, ch *model.Channel) error
	UpdateChannel(ctx context.Context, ch *model.Channel) error
	DeleteChannel(ctx context.Context, id string) error
}

// ConversationStore persists conversations.
type ConversationStore interface {
	FilterConversations(ctx context.Context, f ConversationFilter) ([]model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	// UpdateConversation applies upd if the stored version equals
	// expectedVersion and returns the new record. expectedVersion 0 skips the check.
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate, expectedVersion int) (*model.Conversation, error)
}

// Store is the full entity store.
type Store interface {
	ChannelStore
	ConversationStore
	Ping(ctx context.Context) error
	Close() error
}
