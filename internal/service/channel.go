package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

// TelegramBotTokenKey is the credentials key holding a Telegram bot token.
const TelegramBotTokenKey = "bot_token"

// TelegramBot describes the bot behind a token.
type TelegramBot struct {
	ID       int64
	Username string
}

// TelegramRegistrar points a Telegram bot's webhook at this service.
type TelegramRegistrar interface {
	Register(ctx context.Context, token, webhookURL, secretToken string) (*TelegramBot, error)
	Unregister(ctx context.Context, token string) error
}

// ChannelRegistrar announces connected channels to the Agent-Brain API.
type ChannelRegistrar interface {
	RegisterChannel(ctx context.Context, agentID string, channelType model.ChannelType, credentials map[string]string) error
}

// ChannelService runs the channel connect and disconnect flows.
type ChannelService struct {
	store         store.ChannelStore
	telegram      TelegramRegistrar
	brain         ChannelRegistrar
	publicBaseURL string
	logger        *logger.Logger
}

// NewChannelService creates a new channel service. telegram and brain may be nil.
func NewChannelService(s store.ChannelStore, telegram TelegramRegistrar, brain ChannelRegistrar, publicBaseURL string, log *logger.Logger) *ChannelService {
	return &ChannelService{
		store:         s,
		telegram:      telegram,
		brain:         brain,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        log.Named("channels"),
	}
}

// GenerateSecret returns a random 32-byte hex webhook secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WebhookURL returns the inbound URL a provider should call for ch, or ""
// when the channel type has no webhook in this service.
func (s *ChannelService) WebhookURL(ch *model.Channel) string {
	if !ch.Type.HasWebhook() {
		return ""
	}
	q := url.Values{}
	q.Set("agent_id", ch.AgentID)
	q.Set("secret", ch.WebhookSecret)
	return s.publicBaseURL + "/webhooks/" + string(ch.Type) + "?" + q.Encode()
}

// Connect creates a channel for agentID. The channel is stored as pending,
// registered with the provider and the Agent-Brain API, then activated. A
// failed registration removes the channel again.
func (s *ChannelService) Connect(ctx context.Context, tenantID, agentID string, req *model.ConnectChannelRequest) (*model.ConnectChannelResponse, error) {
	if !req.Type.Valid() {
		return nil, &model.ValidationError{Field: "type", Reason: "is not a supported channel type"}
	}
	if req.Type == model.ChannelTelegram {
		if req.Credentials[TelegramBotTokenKey] == "" {
			return nil, model.Required("credentials.bot_token")
		}
		if s.telegram == nil {
			return nil, &model.ValidationError{Field: "type", Reason: "telegram is not configured"}
		}
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	ch := &model.Channel{
		TenantID:      tenantID,
		AgentID:       agentID,
		Type:          req.Type,
		WebhookSecret: secret,
		Status:        model.ChannelStatusPending,
		Credentials:   req.Credentials,
		Metadata:      req.Metadata,
	}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		return nil, storeErr("create channel", err)
	}

	webhookURL := s.WebhookURL(ch)

	if err := s.register(ctx, ch, webhookURL); err != nil {
		if delErr := s.store.DeleteChannel(ctx, ch.ID); delErr != nil {
			s.logger.Error("failed to remove channel after registration failure",
				zap.String("channel_id", ch.ID),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	ch.Status = model.ChannelStatusActive
	if err := s.store.UpdateChannel(ctx, ch); err != nil {
		return nil, storeErr("activate channel", err)
	}

	s.logger.Info("channel connected",
		zap.String("channel_id", ch.ID),
		zap.String("agent_id", agentID),
		zap.String("type", string(ch.Type)),
	)

	out := ch.Redacted()
	out.WebhookSecret = ch.WebhookSecret
	return &model.ConnectChannelResponse{
		Channel:    &out,
		WebhookURL: webhookURL,
	}, nil
}

func (s *ChannelService) register(ctx context.Context, ch *model.Channel, webhookURL string) error {
	if ch.Type == model.ChannelTelegram {
		bot, err := s.telegram.Register(ctx, ch.Credentials[TelegramBotTokenKey], webhookURL, ch.WebhookSecret)
		if err != nil {
			return &UpstreamError{Service: "telegram", Err: err}
		}
		if ch.Metadata == nil {
			ch.Metadata = map[string]string{}
		}
		ch.Metadata["bot_id"] = strconv.FormatInt(bot.ID, 10)
		ch.Metadata["bot_username"] = bot.Username
	}

	if s.brain != nil {
		if err := s.brain.RegisterChannel(ctx, ch.AgentID, ch.Type, ch.Credentials); err != nil {
			return &UpstreamError{Service: "agent brain", Err: err}
		}
	}
	return nil
}

// List returns the agent's channels without secrets or credentials.
func (s *ChannelService) List(ctx context.Context, tenantID, agentID string) (*model.ListChannelsResponse, error) {
	channels, err := s.store.FilterChannels(ctx, store.ChannelFilter{TenantID: tenantID, AgentID: agentID})
	if err != nil {
		return nil, storeErr("filter channels", err)
	}

	out := make([]model.Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch.Redacted())
	}
	return &model.ListChannelsResponse{Channels: out}, nil
}

// Disconnect deletes a channel. Telegram webhooks are removed best-effort.
func (s *ChannelService) Disconnect(ctx context.Context, tenantID, agentID, channelID string) error {
	ch, err := s.store.GetChannel(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeErr("get channel", err)
	}
	if ch.TenantID != tenantID || ch.AgentID != agentID {
		return ErrNotFound
	}

	if ch.Type == model.ChannelTelegram && s.telegram != nil {
		if token := ch.Credentials[TelegramBotTokenKey]; token != "" {
			if err := s.telegram.Unregister(ctx, token); err != nil {
				s.logger.Warn("failed to remove telegram webhook",
					zap.String("channel_id", ch.ID),
					zap.Error(err),
				)
			}
		}
	}

	if err := s.store.DeleteChannel(ctx, ch.ID); err != nil {
		return storeErr("delete channel", err)
	}

	s.logger.Info("channel disconnected", zap.String("channel_id", ch.ID), zap.String("agent_id", agentID))
	return nil
}
