package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
)

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Inbound is the part of an update the webhook processor needs.
type Inbound struct {
	ChatID       int64
	CustomerID   string
	CustomerName string
	Text         string
}

// DecodeUpdate reads a Telegram update. ok is false for updates without a
// text message (edits, stickers, joins), which are acknowledged and ignored.
func DecodeUpdate(r io.Reader) (in *Inbound, ok bool, err error) {
	var update telego.Update
	if err := json.NewDecoder(r).Decode(&update); err != nil {
		return nil, false, fmt.Errorf("decoding update: %w", err)
	}

	msg := update.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return nil, false, nil
	}

	in = &Inbound{
		ChatID:     msg.Chat.ID,
		CustomerID: strconv.FormatInt(msg.Chat.ID, 10),
		Text:       msg.Text,
	}
	if msg.From != nil {
		in.CustomerName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if in.CustomerName == "" {
			in.CustomerName = msg.From.Username
		}
	}
	return in, true, nil
}
