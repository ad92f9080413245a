package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawA"

// fakeBotAPI records Bot API calls and answers them like Telegram would.
type fakeBotAPI struct {
	mu     sync.Mutex
	calls  []string
	bodies map[string]map[string]any
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	body, _ := io.ReadAll(r.Body)
	var params map[string]any
	_ = json.Unmarshal(body, &params)

	f.mu.Lock()
	f.calls = append(f.calls, method)
	if f.bodies == nil {
		f.bodies = make(map[string]map[string]any)
	}
	f.bodies[method] = params
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Shop","username":"shop_bot"}}`))
	case "setWebhook", "deleteWebhook":
		w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func TestRegistrar_Register(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	r := NewRegistrar(srv.URL, srv.Client())

	bot, err := r.Register(context.Background(), testToken, "https://hooks.example/webhooks/telegram?agent_id=A1&secret=s", "s")
	require.NoError(t, err)
	assert.Equal(t, int64(42), bot.ID)
	assert.Equal(t, "shop_bot", bot.Username)

	assert.Equal(t, []string{"getMe", "setWebhook"}, api.calls)
	assert.Equal(t, "https://hooks.example/webhooks/telegram?agent_id=A1&secret=s", api.bodies["setWebhook"]["url"])
	assert.Equal(t, "s", api.bodies["setWebhook"]["secret_token"])
}

func TestRegistrar_Unregister(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	r := NewRegistrar(srv.URL, srv.Client())
	require.NoError(t, r.Unregister(context.Background(), testToken))
	assert.Equal(t, []string{"deleteWebhook"}, api.calls)
}

func TestRegistrar_InvalidToken(t *testing.T) {
	r := NewRegistrar("http://127.0.0.1:1", nil)
	_, err := r.Register(context.Background(), "not-a-token", "https://hooks.example", "s")
	assert.Error(t, err)
}
