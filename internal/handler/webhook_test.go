package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/reply"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/telegram"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

// countingStore counts every entity store call.
type countingStore struct {
	store.Store
	calls atomic.Int64
}

func (s *countingStore) FilterChannels(ctx context.Context, f store.ChannelFilter) ([]model.Channel, error) {
	s.calls.Add(1)
	return s.Store.FilterChannels(ctx, f)
}

func (s *countingStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	s.calls.Add(1)
	return s.Store.GetChannel(ctx, id)
}

func (s *countingStore) CreateChannel(ctx context.Context, ch *model.Channel) error {
	s.calls.Add(1)
	return s.Store.CreateChannel(ctx, ch)
}

func (s *countingStore) UpdateChannel(ctx context.Context, ch *model.Channel) error {
	s.calls.Add(1)
	return s.Store.UpdateChannel(ctx, ch)
}

func (s *countingStore) DeleteChannel(ctx context.Context, id string) error {
	s.calls.Add(1)
	return s.Store.DeleteChannel(ctx, id)
}

func (s *countingStore) FilterConversations(ctx context.Context, f store.ConversationFilter) ([]model.Conversation, error) {
	s.calls.Add(1)
	return s.Store.FilterConversations(ctx, f)
}

func (s *countingStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.calls.Add(1)
	return s.Store.GetConversation(ctx, id)
}

func (s *countingStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	s.calls.Add(1)
	return s.Store.CreateConversation(ctx, conv)
}

func (s *countingStore) UpdateConversation(ctx context.Context, id string, upd store.ConversationUpdate, expectedVersion int) (*model.Conversation, error) {
	s.calls.Add(1)
	return s.Store.UpdateConversation(ctx, id, upd, expectedVersion)
}

// brokenConversations fails every conversation lookup.
type brokenConversations struct {
	store.Store
}

func (brokenConversations) FilterConversations(ctx context.Context, f store.ConversationFilter) ([]model.Conversation, error) {
	return nil, errors.New("database is locked")
}

type failingResponder struct{}

func (failingResponder) Name() string { return "failing" }

func (failingResponder) Respond(ctx context.Context, req *reply.Request) (string, error) {
	return "", errors.New("agent brain unavailable")
}

type webhookEnv struct {
	store  store.Store
	router http.Handler
}

func newWebhookEnv(t *testing.T, st store.Store, responder reply.Responder, redact bool) *webhookEnv {
	t.Helper()
	log := logger.NewNop()

	auth := service.NewAuthorizer(st, log)
	convs := service.NewConversationService(st, nil, log)
	synth := reply.NewSynthesizer(responder, time.Second, log)
	h := NewWebhookHandler(service.NewInboundProcessor(auth, convs, synth, log), redact, log)

	r := chi.NewRouter()
	r.Post("/webhooks/phone", h.Phone)
	r.Post("/webhooks/website", h.Website)
	r.Post("/webhooks/telegram", h.Telegram)

	return &webhookEnv{store: st, router: r}
}

func seedChannel(t *testing.T, st store.ChannelStore, agentID string, typ model.ChannelType, secret string) {
	t.Helper()
	require.NoError(t, st.CreateChannel(context.Background(), &model.Channel{
		TenantID:      "tenant-1",
		AgentID:       agentID,
		Type:          typ,
		WebhookSecret: secret,
		Status:        model.ChannelStatusActive,
	}))
}

func (e *webhookEnv) post(t *testing.T, target string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *webhookEnv) conversations(t *testing.T, agentID string) []model.Conversation {
	t.Helper()
	convs, err := e.store.FilterConversations(context.Background(), store.ConversationFilter{AgentID: agentID})
	require.NoError(t, err)
	return convs
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestWebsiteWebhookScenario(t *testing.T) {
	env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
	seedChannel(t, env.store, "A1", model.ChannelWebsite, "S1")

	rec := env.post(t, "/webhooks/website?agent_id=A1&secret=S1", map[string]string{
		"message":    "Hi",
		"session_id": "sess-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first model.WebsiteWebhookResponse
	decodeBody(t, rec, &first)
	assert.True(t, first.Success)
	assert.Equal(t, reply.WebsiteReply, first.Response)
	require.NotEmpty(t, first.ConversationID)

	convs := env.conversations(t, "A1")
	require.Len(t, convs, 1)
	conv := convs[0]
	assert.Equal(t, first.ConversationID, conv.ID)
	assert.Equal(t, "sess-1", conv.CustomerPhone)
	assert.Equal(t, model.ChannelWebsite, conv.Channel)
	assert.Equal(t, model.ConversationActive, conv.Status)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hi", conv.Messages[0].Content)
	assert.Equal(t, model.RoleAgent, conv.Messages[1].Role)
	assert.Equal(t, reply.WebsiteReply, conv.Messages[1].Content)

	rec = env.post(t, "/webhooks/website?agent_id=A1&secret=S1", map[string]string{
		"message":    "Still there?",
		"session_id": "sess-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var second model.WebsiteWebhookResponse
	decodeBody(t, rec, &second)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	convs = env.conversations(t, "A1")
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 4)
	assert.Equal(t, conv.Messages, convs[0].Messages[:2])
	assert.Equal(t, "Still there?", convs[0].Messages[2].Content)
	assert.Equal(t, model.RoleAgent, convs[0].Messages[3].Role)
}

func TestWebhookSecretValidation(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"first of several secrets", "/webhooks/website?agent_id=A1&secret=S1", http.StatusOK},
		{"second of several secrets", "/webhooks/website?agent_id=A1&secret=S2", http.StatusOK},
		{"unknown secret", "/webhooks/website?agent_id=A1&secret=nope", http.StatusForbidden},
		{"secret of another agent", "/webhooks/website?agent_id=A1&secret=B-secret", http.StatusForbidden},
		{"secret of another channel type", "/webhooks/website?agent_id=A1&secret=P1", http.StatusForbidden},
		{"agent without channels", "/webhooks/website?agent_id=A9&secret=S1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
			seedChannel(t, env.store, "A1", model.ChannelWebsite, "S1")
			seedChannel(t, env.store, "A1", model.ChannelWebsite, "S2")
			seedChannel(t, env.store, "A1", model.ChannelPhone, "P1")
			seedChannel(t, env.store, "B1", model.ChannelWebsite, "B-secret")

			rec := env.post(t, tt.target, map[string]string{"message": "Hi", "session_id": "sess-1"}, nil)
			assert.Equal(t, tt.want, rec.Code)

			convs, err := env.store.FilterConversations(context.Background(), store.ConversationFilter{})
			require.NoError(t, err)
			if tt.want == http.StatusForbidden {
				var body model.ErrorResponse
				decodeBody(t, rec, &body)
				assert.Equal(t, "Invalid secret", body.Error)
				assert.Empty(t, convs)
			} else {
				assert.Len(t, convs, 1)
			}
		})
	}
}

func TestWebhookMissingParamsTouchNoStore(t *testing.T) {
	tests := []struct {
		name   string
		target string
		field  string
	}{
		{"website without agent", "/webhooks/website?secret=S1", "agent_id"},
		{"website without secret", "/webhooks/website?agent_id=A1", "secret"},
		{"website with blank agent", "/webhooks/website?agent_id=%20&secret=S1", "agent_id"},
		{"phone without agent", "/webhooks/phone?secret=S1", "agent_id"},
		{"phone without secret", "/webhooks/phone?agent_id=A1", "secret"},
		{"telegram without secret", "/webhooks/telegram?agent_id=A1", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &countingStore{Store: store.NewMemoryStore()}
			env := newWebhookEnv(t, st, reply.Canned{}, false)

			rec := env.post(t, tt.target, map[string]string{
				"message": "Hi", "session_id": "sess-1", "from": "+15550001", "body": "Hi",
			}, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body model.ErrorResponse
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.field+" is required", body.Error)
			assert.Zero(t, st.calls.Load())
		})
	}
}

func TestWebhookBodyValidation(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   interface{}
		want   string
	}{
		{"website missing session", "/webhooks/website?agent_id=A1&secret=S1", map[string]string{"message": "Hi"}, "session_id is required"},
		{"website blank message", "/webhooks/website?agent_id=A1&secret=S1", map[string]string{"message": "  ", "session_id": "s"}, "message is required"},
		{"phone missing from", "/webhooks/phone?agent_id=A1&secret=P1", map[string]string{"body": "Hi"}, "from is required"},
		{"phone missing body", "/webhooks/phone?agent_id=A1&secret=P1", map[string]string{"from": "+15550001"}, "body is required"},
		{"malformed json", "/webhooks/website?agent_id=A1&secret=S1", "{not json", "body must be a valid JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &countingStore{Store: store.NewMemoryStore()}
			env := newWebhookEnv(t, st, reply.Canned{}, false)

			rec := env.post(t, tt.target, tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body model.ErrorResponse
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.want, body.Error)
			assert.Zero(t, st.calls.Load())
		})
	}
}

func TestWebhookAppendOrdering(t *testing.T) {
	env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
	seedChannel(t, env.store, "A1", model.ChannelPhone, "P1")

	inputs := []string{"one", "two", "three", "four"}
	for _, text := range inputs {
		rec := env.post(t, "/webhooks/phone?agent_id=A1&secret=P1", map[string]string{
			"from": "+15550001",
			"body": text,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	convs := env.conversations(t, "A1")
	require.Len(t, convs, 1)
	msgs := convs[0].Messages
	require.Len(t, msgs, 2*len(inputs))
	for i, text := range inputs {
		assert.Equal(t, model.RoleUser, msgs[2*i].Role)
		assert.Equal(t, text, msgs[2*i].Content)
		assert.Equal(t, model.RoleAgent, msgs[2*i+1].Role)
		assert.Equal(t, reply.PhoneReply, msgs[2*i+1].Content)
	}
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
}

func TestWebhookConcurrentFirstContact(t *testing.T) {
	env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
	seedChannel(t, env.store, "A1", model.ChannelWebsite, "S1")

	const n = 8
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			rec := env.post(t, "/webhooks/website?agent_id=A1&secret=S1", map[string]string{
				"message":    "hello",
				"session_id": "sess-race",
			}, nil)
			done <- rec.Code
		}()
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, <-done)
	}

	convs := env.conversations(t, "A1")
	require.Len(t, convs, 1)
	msgs := convs[0].Messages
	require.Len(t, msgs, 2*n)
	for i := 0; i < n; i++ {
		assert.Equal(t, model.RoleUser, msgs[2*i].Role)
		assert.Equal(t, model.RoleAgent, msgs[2*i+1].Role)
	}
}

func TestPhoneWebhookTwiML(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		wantTwiML bool
	}{
		{"twilio", "twilio", true},
		{"other provider", "vonage", false},
		{"no provider", "", false},
		{"case sensitive", "Twilio", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
			seedChannel(t, env.store, "A1", model.ChannelPhone, "P1")

			body := map[string]string{"from": "+15550001", "body": "Hi", "callSid": "CA123"}
			if tt.provider != "" {
				body["provider"] = tt.provider
			}
			rec := env.post(t, "/webhooks/phone?agent_id=A1&secret=P1", body, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var raw map[string]interface{}
			decodeBody(t, rec, &raw)
			require.Contains(t, raw, "twiml")
			assert.Equal(t, true, raw["success"])
			assert.Equal(t, reply.PhoneReply, raw["response"])

			if !tt.wantTwiML {
				assert.Nil(t, raw["twiml"])
				return
			}

			twiml, ok := raw["twiml"].(string)
			require.True(t, ok)
			var doc struct {
				XMLName xml.Name `xml:"Response"`
				Message string   `xml:"Message"`
			}
			require.NoError(t, xml.Unmarshal([]byte(twiml), &doc))
			assert.Equal(t, reply.PhoneReply, doc.Message)
		})
	}
}

func TestBuildTwiMLEscapes(t *testing.T) {
	out, err := BuildTwiML(`Tom & Jerry <say> "hi"`)
	require.NoError(t, err)
	assert.Contains(t, out, "Tom &amp; Jerry &lt;say&gt;")

	var doc struct {
		Message string `xml:"Message"`
	}
	require.NoError(t, xml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, `Tom & Jerry <say> "hi"`, doc.Message)
}

func TestWebhookStoreFailure(t *testing.T) {
	for name, tc := range map[string]struct {
		redact bool
		want   string
	}{
		"raw message": {false, "filter conversations: database is locked"},
		"redacted":    {true, "internal error"},
	} {
		t.Run(name, func(t *testing.T) {
			mem := store.NewMemoryStore()
			seedChannel(t, mem, "A1", model.ChannelWebsite, "S1")
			env := newWebhookEnv(t, brokenConversations{Store: mem}, reply.Canned{}, tc.redact)

			rec := env.post(t, "/webhooks/website?agent_id=A1&secret=S1", map[string]string{
				"message": "Hi", "session_id": "sess-1",
			}, nil)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			var body model.ErrorResponse
			decodeBody(t, rec, &body)
			assert.Equal(t, tc.want, body.Error)
		})
	}
}

func TestWebhookReplyFailureDegrades(t *testing.T) {
	env := newWebhookEnv(t, store.NewMemoryStore(), failingResponder{}, false)
	seedChannel(t, env.store, "A1", model.ChannelWebsite, "S1")

	rec := env.post(t, "/webhooks/website?agent_id=A1&secret=S1", map[string]string{
		"message": "Hi", "session_id": "sess-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.WebsiteWebhookResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, reply.FallbackReply, resp.Response)

	convs := env.conversations(t, "A1")
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 2)
	assert.Equal(t, "Hi", convs[0].Messages[0].Content)
	assert.Equal(t, reply.FallbackReply, convs[0].Messages[1].Content)
}

func TestTelegramWebhook(t *testing.T) {
	update := `{"update_id":1,"message":{"message_id":7,"date":1700000000,` +
		`"chat":{"id":4242,"type":"private"},` +
		`"from":{"id":4242,"is_bot":false,"first_name":"Ada","last_name":"Lovelace"},"text":"Do you ship to Oslo?"}}`

	t.Run("header secret and inline reply", func(t *testing.T) {
		env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
		seedChannel(t, env.store, "A1", model.ChannelTelegram, "T1")

		rec := env.post(t, "/webhooks/telegram?agent_id=A1", update, http.Header{
			telegram.SecretHeader: []string{"T1"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp model.TelegramWebhookResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, "sendMessage", resp.Method)
		assert.Equal(t, int64(4242), resp.ChatID)
		assert.Equal(t, reply.TelegramReply, resp.Text)
		assert.True(t, resp.OK)

		convs := env.conversations(t, "A1")
		require.Len(t, convs, 1)
		assert.Equal(t, "4242", convs[0].CustomerPhone)
		assert.Equal(t, "Ada Lovelace", convs[0].CustomerName)
		assert.Equal(t, model.ChannelTelegram, convs[0].Channel)
	})

	t.Run("wrong secret", func(t *testing.T) {
		env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
		seedChannel(t, env.store, "A1", model.ChannelTelegram, "T1")

		rec := env.post(t, "/webhooks/telegram?agent_id=A1&secret=nope", update, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, env.conversations(t, "A1"))
	})

	t.Run("non-text update acknowledged", func(t *testing.T) {
		env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
		seedChannel(t, env.store, "A1", model.ChannelTelegram, "T1")

		rec := env.post(t, "/webhooks/telegram?agent_id=A1&secret=T1",
			`{"update_id":2,"edited_message":{"message_id":7,"date":1700000000,"chat":{"id":4242,"type":"private"},"text":"edit"}}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp model.TelegramWebhookResponse
		decodeBody(t, rec, &resp)
		assert.True(t, resp.OK)
		assert.Empty(t, resp.Method)
		assert.Empty(t, env.conversations(t, "A1"))
	})

	t.Run("malformed update", func(t *testing.T) {
		env := newWebhookEnv(t, store.NewMemoryStore(), reply.Canned{}, false)
		rec := env.post(t, "/webhooks/telegram?agent_id=A1&secret=T1", "[", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
