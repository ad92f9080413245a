// Package reply synthesizes the agent's answer to an inbound message.
package reply

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/metrics"
)

// Canned replies, keyed by channel.
const (
	PhoneReply    = "Thank you for your message! Our AI sales assistant will get back to you shortly."
	WebsiteReply  = "Hello! Thanks for reaching out. How can I help you today?"
	TelegramReply = "Hi! Thanks for your message. An assistant will reply here shortly."

	// FallbackReply is sent when the responder fails or returns nothing.
	FallbackReply = "Sorry, I'm having trouble answering right now. Please try again in a moment."
)

// Request carries everything a responder may use to produce a reply.
type Request struct {
	AgentID        string
	ConversationID string
	Channel        model.ChannelType
	History        []model.Message
}

// Responder produces reply text for a conversation.
type Responder interface {
	Respond(ctx context.Context, req *Request) (string, error)
	Name() string
}

// Canned returns a fixed reply per channel.
type Canned struct{}

// Name returns the responder name.
func (Canned) Name() string { return "canned" }

// Respond returns the fixed reply for req.Channel.
func (Canned) Respond(ctx context.Context, req *Request) (string, error) {
	switch req.Channel {
	case model.ChannelPhone:
		return PhoneReply, nil
	case model.ChannelTelegram:
		return TelegramReply, nil
	default:
		return WebsiteReply, nil
	}
}

// Synthesizer wraps a Responder and never fails: errors and empty replies
// degrade to FallbackReply.
type Synthesizer struct {
	responder Responder
	timeout   time.Duration
	logger    *logger.Logger
}

// NewSynthesizer creates a synthesizer. A zero timeout leaves the caller's deadline in charge.
func NewSynthesizer(responder Responder, timeout time.Duration, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		responder: responder,
		timeout:   timeout,
		logger:    log.Named("reply"),
	}
}

// Reply returns the reply text for req.
func (s *Synthesizer) Reply(ctx context.Context, req *Request) string {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.responder.Respond(ctx, req)
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordReply(s.responder.Name(), "error", duration)
		s.logger.Warn("reply synthesis failed, using fallback",
			zap.String("responder", s.responder.Name()),
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		return FallbackReply
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.RecordReply(s.responder.Name(), "empty", duration)
		s.logger.Warn("responder returned empty reply, using fallback",
			zap.String("responder", s.responder.Name()),
			zap.String("conversation_id", req.ConversationID),
		)
		return FallbackReply
	}

	metrics.RecordReply(s.responder.Name(), "success", duration)
	return text
}
