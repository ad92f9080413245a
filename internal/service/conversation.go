// Package service provides business logic for the sales agent webhook service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/metrics"
)

// maxUpdateAttempts bounds re-read-and-retry cycles on version conflicts.
const maxUpdateAttempts = 3

// InboundMessage is one customer message arriving through a channel.
type InboundMessage struct {
	TenantID     string
	AgentID      string
	Channel      model.ChannelType
	CustomerID   string
	CustomerName string
	Text         string
}

// ConversationService handles conversation operations.
type ConversationService struct {
	store  store.ConversationStore
	events EventPublisher
	locks  *keyLocker
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(s store.ConversationStore, events EventPublisher, log *logger.Logger) *ConversationService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ConversationService{
		store:  s,
		events: events,
		locks:  newKeyLocker(),
		logger: log.Named("conversations"),
	}
}

// LockCustomer serializes work on one (agent, customer) thread within this
// process and returns the unlock function.
func (s *ConversationService) LockCustomer(agentID, customerID string) func() {
	return s.locks.Lock(agentID + "\x00" + customerID)
}

// Upsert appends in to the customer's active conversation, creating one if
// none exists. Callers must serialize calls per (agent, customer).
func (s *ConversationService) Upsert(ctx context.Context, in InboundMessage) (*model.Conversation, bool, error) {
	msg := model.Message{
		Role:      model.RoleUser,
		Content:   in.Text,
		Timestamp: time.Now().UTC(),
	}

	active, err := s.store.FilterConversations(ctx, store.ConversationFilter{
		AgentID:       in.AgentID,
		CustomerPhone: in.CustomerID,
		Status:        model.ConversationActive,
	})
	if err != nil {
		return nil, false, storeErr("filter conversations", err)
	}

	if len(active) == 0 {
		conv := &model.Conversation{
			TenantID:      in.TenantID,
			AgentID:       in.AgentID,
			Channel:       in.Channel,
			CustomerPhone: in.CustomerID,
			CustomerName:  in.CustomerName,
			Messages:      []model.Message{msg},
			Status:        model.ConversationActive,
		}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, false, storeErr("create conversation", err)
		}

		metrics.ConversationsTotal.WithLabelValues(string(in.Channel)).Inc()
		metrics.MessagesTotal.WithLabelValues(string(in.Channel), string(model.RoleUser)).Inc()
		s.logger.Info("conversation created",
			zap.String("conversation_id", conv.ID),
			zap.String("agent_id", conv.AgentID),
			zap.String("channel", string(conv.Channel)),
		)
		publishEvent(ctx, s.events, s.logger, conv, model.EventTypeConversationCreated, &msg)
		return conv, true, nil
	}

	// Newest first; older duplicates are left alone.
	if len(active) > 1 {
		s.logger.Warn("multiple active conversations for customer, using most recent",
			zap.String("agent_id", in.AgentID),
			zap.String("conversation_id", active[0].ID),
			zap.Int("count", len(active)),
		)
	}

	conv, err := s.Append(ctx, &active[0], msg)
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// Append adds msg to the end of conv's message list. The write is
// version-checked; on conflict the conversation is re-read and the append
// re-applied to the fresh list.
func (s *ConversationService) Append(ctx context.Context, conv *model.Conversation, msg model.Message) (*model.Conversation, error) {
	current := conv
	for attempt := 1; ; attempt++ {
		msgs := make([]model.Message, 0, len(current.Messages)+1)
		msgs = append(msgs, current.Messages...)
		msgs = append(msgs, msg)

		updated, err := s.store.UpdateConversation(ctx, current.ID, store.ConversationUpdate{Messages: msgs}, current.Version)
		if err == nil {
			metrics.MessagesTotal.WithLabelValues(string(updated.Channel), string(msg.Role)).Inc()
			publishEvent(ctx, s.events, s.logger, updated, model.EventTypeMessageAppended, &msg)
			return updated, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, storeErr("update conversation", err)
		}

		metrics.VersionConflicts.Inc()
		if attempt >= maxUpdateAttempts {
			return nil, storeErr("update conversation", fmt.Errorf("gave up after %d attempts: %w", attempt, err))
		}

		s.logger.Debug("conversation version conflict, retrying",
			zap.String("conversation_id", current.ID),
			zap.Int("attempt", attempt),
		)

		current, err = s.store.GetConversation(ctx, current.ID)
		if err != nil {
			return nil, storeErr("reload conversation", err)
		}
	}
}

// List returns the tenant's conversations for an agent, newest first.
func (s *ConversationService) List(ctx context.Context, tenantID, agentID string, status model.ConversationStatus, limit int) (*model.ListConversationsResponse, error) {
	convs, err := s.store.FilterConversations(ctx, store.ConversationFilter{
		TenantID: tenantID,
		AgentID:  agentID,
		Status:   status,
		Limit:    limit,
	})
	if err != nil {
		return nil, storeErr("filter conversations", err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	}, nil
}

// Get retrieves a conversation by ID, scoped to the tenant.
func (s *ConversationService) Get(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	if conv.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// UpdateStatus moves a conversation to status. Reactivating is refused when
// the customer already has another active conversation.
func (s *ConversationService) UpdateStatus(ctx context.Context, tenantID, conversationID string, status model.ConversationStatus) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, &model.ValidationError{Field: "status", Reason: "must be one of active, completed, transferred"}
	}

	conv, err := s.Get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	unlock := s.LockCustomer(conv.AgentID, conv.CustomerPhone)
	defer unlock()

	if conv.Status == status {
		return conv, nil
	}

	if status == model.ConversationActive {
		active, err := s.store.FilterConversations(ctx, store.ConversationFilter{
			AgentID:       conv.AgentID,
			CustomerPhone: conv.CustomerPhone,
			Status:        model.ConversationActive,
			Limit:         1,
		})
		if err != nil {
			return nil, storeErr("filter conversations", err)
		}
		if len(active) > 0 {
			return nil, &model.ValidationError{Field: "status", Reason: "customer already has an active conversation"}
		}
	}

	updated, err := s.store.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{Status: status}, 0)
	if err != nil {
		return nil, storeErr("update conversation", err)
	}

	publishEvent(ctx, s.events, s.logger, updated, model.EventTypeStatusChanged, nil)
	return updated, nil
}
