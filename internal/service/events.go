package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/metrics"
)

// EventPublisher fans conversation changes out to inbox consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.ConversationEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(ctx context.Context, event *model.ConversationEvent) error {
	return nil
}

// publishEvent publishes best-effort: a failed publish is logged and counted
// but never fails the request.
func publishEvent(ctx context.Context, pub EventPublisher, log *logger.Logger, conv *model.Conversation, typ model.EventType, msg *model.Message) {
	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		AgentID:        conv.AgentID,
		Channel:        conv.Channel,
		Type:           typ,
		Message:        msg,
		Status:         conv.Status,
		CreatedAt:      time.Now().UTC(),
	}

	if err := pub.Publish(ctx, event); err != nil {
		metrics.EventPublishFailures.Inc()
		log.Warn("failed to publish conversation event",
			zap.String("conversation_id", conv.ID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
}
