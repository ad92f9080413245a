// Package telegram wires Telegram bots to the inbound webhook.
package telegram

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mymmrac/telego"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
)

// Registrar performs getMe / setWebhook / deleteWebhook for a bot token.
type Registrar struct {
	opts []telego.BotOption
}

// NewRegistrar creates a registrar. apiServer overrides the Bot API base URL
// when non-empty; httpClient may be nil.
func NewRegistrar(apiServer string, httpClient *http.Client) *Registrar {
	opts := []telego.BotOption{telego.WithDiscardLogger()}
	if apiServer != "" {
		opts = append(opts, telego.WithAPIServer(apiServer))
	}
	if httpClient != nil {
		opts = append(opts, telego.WithHTTPClient(httpClient))
	}
	return &Registrar{opts: opts}
}

func (r *Registrar) bot(token string) (*telego.Bot, error) {
	bot, err := telego.NewBot(token, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid bot token: %w", err)
	}
	return bot, nil
}

// Register verifies the token with getMe and points the bot's webhook at webhookURL.
func (r *Registrar) Register(ctx context.Context, token, webhookURL, secretToken string) (*service.TelegramBot, error) {
	bot, err := r.bot(token)
	if err != nil {
		return nil, err
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("getMe: %w", err)
	}

	if err := bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            webhookURL,
		SecretToken:    secretToken,
		AllowedUpdates: []string{"message"},
	}); err != nil {
		return nil, fmt.Errorf("setWebhook: %w", err)
	}

	return &service.TelegramBot{ID: me.ID, Username: me.Username}, nil
}

// Unregister removes the bot's webhook.
func (r *Registrar) Unregister(ctx context.Context, token string) error {
	bot, err := r.bot(token)
	if err != nil {
		return err
	}
	if err := bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	return nil
}
