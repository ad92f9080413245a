// Package brain is the client for the external Agent-Brain API, which
// generates replies and owns the provider-side channel registrations.
package brain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/reply"
)

// Config holds Agent-Brain connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the Agent-Brain REST API.
type Client struct {
	http *resty.Client
}

// New creates an Agent-Brain client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("agent brain base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: c}, nil
}

type replyRequest struct {
	AgentID        string          `json:"agent_id"`
	ConversationID string          `json:"conversation_id"`
	Channel        string          `json:"channel"`
	Messages       []model.Message `json:"messages"`
}

type replyResponse struct {
	Response string `json:"response"`
}

// Name returns the responder name.
func (c *Client) Name() string {
	return "brain"
}

// Respond asks the Agent-Brain API for a reply given the full history.
func (c *Client) Respond(ctx context.Context, req *reply.Request) (string, error) {
	var out replyResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&replyRequest{
			AgentID:        req.AgentID,
			ConversationID: req.ConversationID,
			Channel:        string(req.Channel),
			Messages:       req.History,
		}).
		SetResult(&out).
		Post("/agents/" + url.PathEscape(req.AgentID) + "/reply")
	if err != nil {
		return "", fmt.Errorf("agent brain reply: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("agent brain reply: status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	return out.Response, nil
}

type registerRequest struct {
	AgentID     string            `json:"agent_id"`
	ChannelType string            `json:"channel_type"`
	Credentials map[string]string `json:"credentials"`
}

// RegisterChannel tells the Agent-Brain API about a newly connected channel.
func (c *Client) RegisterChannel(ctx context.Context, agentID string, channelType model.ChannelType, credentials map[string]string) error {
	if credentials == nil {
		credentials = map[string]string{}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&registerRequest{
			AgentID:     agentID,
			ChannelType: string(channelType),
			Credentials: credentials,
		}).
		Post("/channels/register")
	if err != nil {
		return fmt.Errorf("agent brain register: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("agent brain register: status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
