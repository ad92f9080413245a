package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

// Authorizer validates inbound webhook calls against registered channel secrets.
type Authorizer struct {
	channels store.ChannelStore
	logger   *logger.Logger
}

// NewAuthorizer creates a new authorizer.
func NewAuthorizer(channels store.ChannelStore, log *logger.Logger) *Authorizer {
	return &Authorizer{
		channels: channels,
		logger:   log.Named("auth"),
	}
}

// Authorize returns the channel of the given type registered for agentID
// whose webhook secret equals secret. Missing parameters fail before the
// store is touched.
func (a *Authorizer) Authorize(ctx context.Context, agentID, secret string, channelType model.ChannelType) (*model.Channel, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, model.Required("agent_id")
	}
	if secret == "" {
		return nil, model.Required("secret")
	}

	channels, err := a.channels.FilterChannels(ctx, store.ChannelFilter{
		AgentID: agentID,
		Type:    channelType,
	})
	if err != nil {
		return nil, storeErr("filter channels", err)
	}

	for i := range channels {
		ch := &channels[i]
		if ch.WebhookSecret == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(ch.WebhookSecret), []byte(secret)) == 1 {
			return ch, nil
		}
	}

	a.logger.Warn("webhook secret rejected",
		zap.String("agent_id", agentID),
		zap.String("channel", string(channelType)),
		zap.Int("candidates", len(channels)),
	)
	return nil, ErrUnauthorized
}
