package handler

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/middleware"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/telegram"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/metrics"
)

// WebhookHandler handles inbound channel webhooks.
type WebhookHandler struct {
	processor *service.InboundProcessor
	errors    errorWriter
	logger    *logger.Logger
}

// NewWebhookHandler creates a new webhook handler. When redact is set, 500
// responses carry a generic message instead of the underlying error.
func NewWebhookHandler(processor *service.InboundProcessor, redact bool, log *logger.Logger) *WebhookHandler {
	log = log.Named("webhooks")
	return &WebhookHandler{
		processor: processor,
		errors:    errorWriter{redact: redact, logger: log},
		logger:    log,
	}
}

// webhookParams reads the query credentials. Both must be present before
// anything else is looked at. headerSecret is used when the query has none.
func webhookParams(r *http.Request, headerSecret string) (agentID, secret string, err error) {
	q := r.URL.Query()
	agentID = strings.TrimSpace(q.Get("agent_id"))
	secret = q.Get("secret")
	if secret == "" {
		secret = headerSecret
	}
	if agentID == "" {
		return "", "", model.Required("agent_id")
	}
	if secret == "" {
		return "", "", model.Required("secret")
	}
	return agentID, secret, nil
}

// Phone handles POST /webhooks/phone
func (h *WebhookHandler) Phone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome := outcomeOK
	defer func() { metrics.RecordWebhook(string(model.ChannelPhone), outcome) }()

	agentID, secret, err := webhookParams(r, "")
	if err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	var req model.PhoneWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		outcome = h.errors.write(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	res, err := h.process(ctx, agentID, secret, model.ChannelPhone, req.From, "", req.Body)
	if err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	resp := model.PhoneWebhookResponse{
		Success:        true,
		Response:       res.Reply,
		ConversationID: res.Conversation.ID,
	}
	if req.Provider == ProviderTwilio {
		twiml, err := BuildTwiML(res.Reply)
		if err != nil {
			outcome = h.errors.write(w, err)
			return
		}
		resp.TwiML = &twiml
	}

	writeJSON(w, http.StatusOK, resp)
}

// Website handles POST /webhooks/website
func (h *WebhookHandler) Website(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome := outcomeOK
	defer func() { metrics.RecordWebhook(string(model.ChannelWebsite), outcome) }()

	agentID, secret, err := webhookParams(r, "")
	if err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	var req model.WebsiteWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		outcome = h.errors.write(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	res, err := h.process(ctx, agentID, secret, model.ChannelWebsite, req.SessionID, req.UserID, req.Message)
	if err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.WebsiteWebhookResponse{
		Success:        true,
		Response:       res.Reply,
		ConversationID: res.Conversation.ID,
	})
}

// Telegram handles POST /webhooks/telegram. The Bot API sends the secret in
// a header; the query parameter is accepted as well.
func (h *WebhookHandler) Telegram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome := outcomeOK
	defer func() { metrics.RecordWebhook(string(model.ChannelTelegram), outcome) }()

	agentID, secret, err := webhookParams(r, r.Header.Get(telegram.SecretHeader))
	if err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	in, ok, err := telegram.DecodeUpdate(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		outcome = h.errors.write(w, &model.ValidationError{Field: "body", Reason: "must be a Telegram update"})
		return
	}

	ch, err := h.processor.Authorize(ctx, agentID, secret, model.ChannelTelegram)
	if err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	// Acknowledge updates we do not act on so Telegram stops redelivering them.
	if !ok {
		outcome = outcomeIgnored
		writeJSON(w, http.StatusOK, model.TelegramWebhookResponse{OK: true})
		return
	}
	if err := model.ValidateContent("text", in.Text); err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	res, err := h.processor.Process(ctx, ch, in.CustomerID, in.CustomerName, in.Text)
	if err != nil {
		outcome = h.errors.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.TelegramWebhookResponse{
		Method:         "sendMessage",
		ChatID:         in.ChatID,
		Text:           res.Reply,
		OK:             true,
		ConversationID: res.Conversation.ID,
	})
}

func (h *WebhookHandler) process(ctx context.Context, agentID, secret string, channel model.ChannelType, customerID, customerName, text string) (*service.InboundResult, error) {
	log := h.logger.WithWebhook(middleware.GetCorrelationID(ctx), agentID, string(channel))

	ch, err := h.processor.Authorize(ctx, agentID, secret, channel)
	if err != nil {
		return nil, err
	}

	res, err := h.processor.Process(ctx, ch, customerID, customerName, text)
	if err != nil {
		return nil, err
	}

	log.Info("inbound message processed",
		zap.String("conversation_id", res.Conversation.ID),
		zap.Bool("created", res.Created),
		zap.Int("messages", len(res.Conversation.Messages)),
	)
	return res, nil
}
