package model

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength bounds inbound message content (~100KB).
const MaxMessageLength = 100000

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Required returns a ValidationError for a missing field.
func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// PhoneWebhookRequest is the body a telephony provider posts for an inbound SMS or call transcript.
type PhoneWebhookRequest struct {
	From     string `json:"from"`
	Body     string `json:"body"`
	CallSid  string `json:"callSid,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Validate checks required fields.
func (r *PhoneWebhookRequest) Validate() error {
	if strings.TrimSpace(r.From) == "" {
		return Required("from")
	}
	return ValidateContent("body", r.Body)
}

// WebsiteWebhookRequest is the body the website widget posts.
type WebsiteWebhookRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
}

// Validate checks required fields.
func (r *WebsiteWebhookRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return Required("session_id")
	}
	return ValidateContent("message", r.Message)
}

// ValidateContent rejects blank, oversized and non-UTF-8 message text.
func ValidateContent(field, content string) error {
	if strings.TrimSpace(content) == "" {
		return Required(field)
	}
	if len(content) > MaxMessageLength {
		return &ValidationError{Field: field, Reason: "exceeds maximum length"}
	}
	if !utf8.ValidString(content) {
		return &ValidationError{Field: field, Reason: "must be valid UTF-8"}
	}
	return nil
}

// WebsiteWebhookResponse is returned to the website widget.
type WebsiteWebhookResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// PhoneWebhookResponse is returned to telephony providers. TwiML is null
// unless the provider is twilio.
type PhoneWebhookResponse struct {
	Success        bool    `json:"success"`
	Response       string  `json:"response"`
	ConversationID string  `json:"conversation_id"`
	TwiML          *string `json:"twiml"`
}

// TelegramWebhookResponse answers a Telegram update with an inline
// sendMessage call, which the Bot API executes on our behalf.
type TelegramWebhookResponse struct {
	Method         string `json:"method,omitempty"`
	ChatID         int64  `json:"chat_id,omitempty"`
	Text           string `json:"text,omitempty"`
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
