package model

import (
	"time"
)

// ChannelType identifies the messaging surface a channel is bound to.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelPhone    ChannelType = "phone"
	ChannelWebsite  ChannelType = "website"
	ChannelMax      ChannelType = "max"
)

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelTelegram, ChannelWhatsApp, ChannelPhone, ChannelWebsite, ChannelMax:
		return true
	}
	return false
}

// HasWebhook reports whether inbound messages for t arrive through this service.
func (t ChannelType) HasWebhook() bool {
	switch t {
	case ChannelTelegram, ChannelPhone, ChannelWebsite:
		return true
	}
	return false
}

// ChannelStatus is the lifecycle state of a channel.
type ChannelStatus string

const (
	ChannelStatusActive  ChannelStatus = "active"
	ChannelStatusPending ChannelStatus = "pending"
	ChannelStatusPaused  ChannelStatus = "paused"
)

// Channel binds an agent to an inbound integration.
type Channel struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	AgentID       string            `json:"agent_id"`
	Type          ChannelType       `json:"type"`
	WebhookSecret string            `json:"webhook_secret,omitempty"`
	Status        ChannelStatus     `json:"status"`
	Credentials   map[string]string `json:"credentials,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Redacted returns a copy without the webhook secret and provider credentials.
func (c Channel) Redacted() Channel {
	c.WebhookSecret = ""
	c.Credentials = nil
	return c
}

// ConnectChannelRequest is the request to connect a new channel to an agent.
type ConnectChannelRequest struct {
	Type        ChannelType       `json:"type"`
	Credentials map[string]string `json:"credentials,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ConnectChannelResponse is the response after connecting a channel.
type ConnectChannelResponse struct {
	Channel    *Channel `json:"channel"`
	WebhookURL string   `json:"webhook_url,omitempty"`
}

// ListChannelsResponse is the response for listing channels.
type ListChannelsResponse struct {
	Channels []Channel `json:"channels"`
}
