package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Mode:           "test",
		Secret:         "test-secret",
		SessionTTL:     time.Hour,
		ReadLimit:      32768,
		PingPeriod:     time.Minute,
		WriteTimeout:   time.Second,
		SendBuffer:     32,
		LedgerTTL:      time.Hour,
		AllowedOrigins: []string{"*"},
	}
}

func newServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	cfg := testConfig()
	st := store.NewMemory()
	authority, err := auth.NewAuthority([]byte(cfg.Secret), cfg.SessionTTL)
	require.NoError(t, err)
	reg := app.NewRegistry(app.NewRoomManager(st, app.SimplePolicy{Visibility: domain.Public}), st, cfg.LedgerTTL)
	o := orch.New(reg, authority, st, app.NewRoomRateLimiter(100, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(func() {
		o.Shutdown(context.Background())
		cancel()
		srv.Close()
	})
	return srv, o
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func issue(t *testing.T, srv *httptest.Server, user string) string {
	t.Helper()
	var body struct {
		SessionID string `json:"sessionId"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/session/"+user, &body))
	require.NotEmpty(t, body.SessionID)
	return body.SessionID
}

type frame struct {
	Type     string          `json:"type"`
	Username string          `json:"username"`
	Content  json.RawMessage `json:"content"`
	Users    []string        `json:"users"`
	Error    string          `json:"error"`
}

func dial(t *testing.T, srv *httptest.Server, room, user, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/chat/" + room +
		"?username=" + url.QueryEscape(user) + "&session=" + url.QueryEscape(token)
	return websocket.DefaultDialer.Dial(u, nil)
}

// readUntil reads frames until one of type kind arrives.
func readUntil(t *testing.T, ws *websocket.Conn, kind string) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, ws.ReadJSON(&f))
		if f.Type == kind {
			return f
		}
	}
}

func TestSessionAndRoomOptions(t *testing.T) {
	srv, _ := newServer(t)

	assert.NotEqual(t, issue(t, srv, "alice"), "")
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/session/"+strings.Repeat("x", 40), nil))

	var opts domain.RoomOptions
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms/42/options", &opts))
	assert.Equal(t, domain.Public, opts.Visibility)

	assert.Equal(t, http.StatusOK,
		postJSON(t, srv.URL+"/api/rooms/42/options", `{"visibility":"private","maxConnectionsPerIp":2}`, &opts))
	assert.Equal(t, domain.RoomOptions{RoomID: "42", Visibility: domain.Private, MaxConnectionsPerIP: 2}, opts)

	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, srv.URL+"/api/rooms/42/options", `{"visibility":"hidden"}`, nil))

	var rooms struct {
		Rooms []map[string]any `json:"rooms"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms", &rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "42", rooms.Rooms[0]["roomId"])
}

func TestSendAndHistory(t *testing.T) {
	srv, _ := newServer(t)
	token := issue(t, srv, "alice")

	assert.Equal(t, http.StatusOK,
		postJSON(t, srv.URL+"/api/send", `{"sessionId":"`+token+`","roomId":7,"type":"message","content":"hello"}`, nil))
	assert.Equal(t, http.StatusOK,
		postJSON(t, srv.URL+"/api/send", `{"sessionId":"`+token+`","roomId":"7","type":"sticker","content":{"emoji":"cat"}}`, nil))

	var errBody map[string]string
	assert.Equal(t, http.StatusUnauthorized,
		postJSON(t, srv.URL+"/api/send", `{"sessionId":"bogus","roomId":7,"type":"message","content":"x"}`, &errBody))
	assert.Equal(t, "invalid_session", errBody["error"])
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, srv.URL+"/api/send", `{"sessionId":"`+token+`","roomId":7,"type":"message","content":"<script>x</script>"}`, &errBody))
	assert.Equal(t, "unsafe_content", errBody["error"])

	var hist []domain.ChatMessage
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/messages/7", &hist))
	require.Len(t, hist, 2)
	assert.Equal(t, domain.Identity("alice"), hist[0].Username)
	assert.Equal(t, "hello", hist[0].Content.Text)
	assert.Equal(t, domain.KindSticker, hist[1].Type)
	assert.Equal(t, "cat", hist[1].Content.StickerID)
}

func TestWebsocketChat(t *testing.T) {
	srv, _ := newServer(t)
	aliceTok := issue(t, srv, "alice")
	bobTok := issue(t, srv, "bob")

	alice, _, err := dial(t, srv, "lobby", "alice", aliceTok)
	require.NoError(t, err)
	defer alice.Close()
	readUntil(t, alice, "session")

	bob, _, err := dial(t, srv, "lobby", "bob", bobTok)
	require.NoError(t, err)
	defer bob.Close()
	readUntil(t, bob, "session")

	users := readUntil(t, alice, "users")
	assert.Equal(t, []string{"alice", "bob"}, users.Users)

	require.NoError(t, bob.WriteJSON(map[string]any{"type": "message", "content": "hi alice", "roomId": "lobby"}))
	got := readUntil(t, alice, "message")
	assert.Equal(t, "bob", got.Username)
	assert.JSONEq(t, `{"text":"hi alice"}`, string(got.Content))

	require.NoError(t, bob.WriteJSON(map[string]any{"type": "message", "content": "<script>x</script>"}))
	assert.Equal(t, "unsafe_content", readUntil(t, bob, "error").Error)

	require.NoError(t, bob.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, bob, "pong")

	require.NoError(t, bob.Close())
	left := readUntil(t, alice, "notification")
	assert.JSONEq(t, `"bob has left the chat"`, string(left.Content))
}

func TestWebsocketRejections(t *testing.T) {
	srv, o := newServer(t)
	_, err := o.SetRoomOptions(context.Background(), domain.RoomOptions{RoomID: "42", Visibility: domain.Private, MaxConnectionsPerIP: 1})
	require.NoError(t, err)

	ws, _, err := dial(t, srv, "42", "alice", "not-a-token")
	require.NoError(t, err)
	_, _, err = ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4001, closeErr.Code)
	assert.NotEmpty(t, closeErr.Text)

	alice, _, err := dial(t, srv, "42", "alice", issue(t, srv, "alice"))
	require.NoError(t, err)
	defer alice.Close()
	readUntil(t, alice, "session")

	ws, _, err = dial(t, srv, "42", "bob", issue(t, srv, "bob"))
	require.NoError(t, err)
	for {
		if _, _, err = ws.ReadMessage(); err != nil {
			break
		}
	}
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4003, closeErr.Code)
}
