package middleware

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateChannelID validates a channel ID.
func ValidateChannelID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid channel ID format")
	}
	return nil
}

// ValidateAgentID validates an agent ID taken from a path or query.
func ValidateAgentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("agent ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("agent ID exceeds maximum length")
	}
	return nil
}
