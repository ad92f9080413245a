package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/middleware"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/reply"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

type apiEnv struct {
	store  *store.MemoryStore
	router http.Handler
}

// withTenant stands in for JWT auth by reading the tenant from a header.
func withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.TenantIDKey, r.Header.Get("X-Test-Tenant"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	log := logger.NewNop()
	st := store.NewMemoryStore()

	convs := service.NewConversationService(st, nil, log)
	channels := service.NewChannelService(st, nil, nil, "https://hooks.example.com", log)
	processor := service.NewInboundProcessor(service.NewAuthorizer(st, log), convs,
		reply.NewSynthesizer(reply.Canned{}, time.Second, log), log)

	webhooks := NewWebhookHandler(processor, false, log)
	channelHandler := NewChannelHandler(channels, false, log)
	convHandler := NewConversationHandler(convs, false, log)
	health := NewHealthHandler(st, nil)

	r := chi.NewRouter()
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Post("/webhooks/website", webhooks.Website)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(withTenant)
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Post("/channels", channelHandler.Connect)
			r.Get("/channels", channelHandler.List)
			r.Delete("/channels/{id}", channelHandler.Delete)
			r.Get("/conversations", convHandler.List)
		})
		r.Get("/conversations/{id}", convHandler.Get)
		r.Put("/conversations/{id}/status", convHandler.UpdateStatus)
	})

	return &apiEnv{store: st, router: r}
}

func (e *apiEnv) do(t *testing.T, method, target, tenant string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if tenant != "" {
		req.Header.Set("X-Test-Tenant", tenant)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestChannelConnectFlow(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/agents/A1/channels", "tenant-1", model.ConnectChannelRequest{
		Type: model.ChannelWebsite,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var connected model.ConnectChannelResponse
	decodeBody(t, rec, &connected)
	require.NotNil(t, connected.Channel)
	assert.Equal(t, model.ChannelStatusActive, connected.Channel.Status)
	assert.Len(t, connected.Channel.WebhookSecret, 64)
	require.True(t, strings.HasPrefix(connected.WebhookURL, "https://hooks.example.com/webhooks/website?"))

	// The returned URL is immediately usable.
	u, err := url.Parse(connected.WebhookURL)
	require.NoError(t, err)
	assert.Equal(t, "A1", u.Query().Get("agent_id"))
	assert.Equal(t, connected.Channel.WebhookSecret, u.Query().Get("secret"))

	rec = env.do(t, http.MethodPost, "/webhooks/website?"+u.RawQuery, "", map[string]string{
		"message": "Hi", "session_id": "sess-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Listing never exposes the secret.
	rec = env.do(t, http.MethodGet, "/api/v1/agents/A1/channels", "tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), connected.Channel.WebhookSecret)
	var listed model.ListChannelsResponse
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Channels, 1)
	assert.Empty(t, listed.Channels[0].WebhookSecret)

	// Other tenants see nothing and cannot delete.
	rec = env.do(t, http.MethodGet, "/api/v1/agents/A1/channels", "tenant-2", nil)
	decodeBody(t, rec, &listed)
	assert.Empty(t, listed.Channels)

	rec = env.do(t, http.MethodDelete, "/api/v1/agents/A1/channels/"+connected.Channel.ID, "tenant-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/agents/A1/channels/"+connected.Channel.ID, "tenant-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Disconnected channels stop authorizing webhooks.
	rec = env.do(t, http.MethodPost, "/webhooks/website?"+u.RawQuery, "", map[string]string{
		"message": "Hi again", "session_id": "sess-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChannelConnectRejects(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"unknown type", model.ConnectChannelRequest{Type: "fax"}, "type is not a supported channel type"},
		{"telegram without token", model.ConnectChannelRequest{Type: model.ChannelTelegram}, "credentials.bot_token is required"},
		{"telegram not configured", model.ConnectChannelRequest{
			Type:        model.ChannelTelegram,
			Credentials: map[string]string{"bot_token": "123:abc"},
		}, "type telegram is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/agents/A1/channels", "tenant-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body model.ErrorResponse
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.want, body.Error)
		})
	}

	channels, err := env.store.FilterChannels(context.Background(), store.ChannelFilter{})
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestConversationInbox(t *testing.T) {
	env := newAPIEnv(t)
	seedChannel(t, env.store, "A1", model.ChannelWebsite, "S1")

	for _, session := range []string{"sess-1", "sess-2"} {
		rec := env.do(t, http.MethodPost, "/webhooks/website?agent_id=A1&secret=S1", "", map[string]string{
			"message": "Hi", "session_id": session,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/agents/A1/conversations", "tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list model.ListConversationsResponse
	decodeBody(t, rec, &list)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "sess-2", list.Conversations[0].CustomerPhone, "newest first")
	convID := list.Conversations[0].ID

	rec = env.do(t, http.MethodGet, "/api/v1/conversations/"+convID, "tenant-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/conversations/not-a-uuid", "tenant-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/conversations/"+convID+"/status", "tenant-1",
		model.UpdateConversationStatusRequest{Status: model.ConversationCompleted})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/agents/A1/conversations?status=active", "tenant-1", nil)
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "sess-1", list.Conversations[0].CustomerPhone)

	rec = env.do(t, http.MethodGet, "/api/v1/agents/A1/conversations?status=archived", "tenant-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A completed conversation is not reused; the next message opens a new one.
	rec = env.do(t, http.MethodPost, "/webhooks/website?agent_id=A1&secret=S1", "", map[string]string{
		"message": "Back again", "session_id": "sess-2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.WebsiteWebhookResponse
	decodeBody(t, rec, &resp)
	assert.NotEqual(t, convID, resp.ConversationID)

	// Reactivating the old one would leave two active conversations.
	rec = env.do(t, http.MethodPut, "/api/v1/conversations/"+convID+"/status", "tenant-1",
		model.UpdateConversationStatusRequest{Status: model.ConversationActive})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}
