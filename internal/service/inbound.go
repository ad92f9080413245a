package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/reply"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/tracing"
)

// Replier produces the agent's answer. It must always return some text.
type Replier interface {
	Reply(ctx context.Context, req *reply.Request) string
}

// InboundResult is the outcome of processing one inbound message.
type InboundResult struct {
	Conversation *model.Conversation
	Reply        string
	Created      bool
}

// InboundProcessor runs the webhook pipeline: authorize, fetch-or-create the
// conversation, append the inbound message, synthesize a reply, append the reply.
type InboundProcessor struct {
	auth          *Authorizer
	conversations *ConversationService
	replier       Replier
	tracer        trace.Tracer
	logger        *logger.Logger
}

// NewInboundProcessor creates a new inbound processor.
func NewInboundProcessor(auth *Authorizer, conversations *ConversationService, replier Replier, log *logger.Logger) *InboundProcessor {
	return &InboundProcessor{
		auth:          auth,
		conversations: conversations,
		replier:       replier,
		tracer:        tracing.Tracer("inbound"),
		logger:        log.Named("inbound"),
	}
}

// Authorize validates the webhook credentials for a channel type.
func (p *InboundProcessor) Authorize(ctx context.Context, agentID, secret string, channelType model.ChannelType) (*model.Channel, error) {
	ctx, span := p.tracer.Start(ctx, "webhook.authorize", trace.WithAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("channel", string(channelType)),
	))
	defer span.End()

	ch, err := p.auth.Authorize(ctx, agentID, secret, channelType)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return ch, err
}

// Process records the inbound message on ch's agent and appends a reply.
// Work for one customer is serialized for the whole pipeline so each user
// message is immediately followed by its reply in the log.
func (p *InboundProcessor) Process(ctx context.Context, ch *model.Channel, customerID, customerName, text string) (*InboundResult, error) {
	ctx, span := p.tracer.Start(ctx, "webhook.process", trace.WithAttributes(
		attribute.String("agent_id", ch.AgentID),
		attribute.String("channel", string(ch.Type)),
	))
	defer span.End()

	unlock := p.conversations.LockCustomer(ch.AgentID, customerID)
	defer unlock()

	conv, created, err := p.conversations.Upsert(ctx, InboundMessage{
		TenantID:     ch.TenantID,
		AgentID:      ch.AgentID,
		Channel:      ch.Type,
		CustomerID:   customerID,
		CustomerName: customerName,
		Text:         text,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation_id", conv.ID), attribute.Bool("created", created))

	text = p.replier.Reply(ctx, &reply.Request{
		AgentID:        ch.AgentID,
		ConversationID: conv.ID,
		Channel:        ch.Type,
		History:        conv.Messages,
	})

	conv, err = p.conversations.Append(ctx, conv, model.Message{
		Role:      model.RoleAgent,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		// The inbound message is already stored; only the reply is lost.
		p.logger.Error("failed to record agent reply",
			zap.String("agent_id", ch.AgentID),
			zap.Error(err),
		)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &InboundResult{
		Conversation: conv,
		Reply:        text,
		Created:      created,
	}, nil
}
