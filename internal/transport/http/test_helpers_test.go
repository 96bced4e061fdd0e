package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/shelfx/shelfx-chat/internal/auth"
	"github.com/shelfx/shelfx-chat/internal/config"
	"github.com/shelfx/shelfx-chat/internal/core"
	applog "github.com/shelfx/shelfx-chat/internal/log"
	"github.com/shelfx/shelfx-chat/internal/proto"
	"github.com/shelfx/shelfx-chat/internal/store"
	"github.com/shelfx/shelfx-chat/internal/store/sqlite"
)

const testSecret = "testsecret"

type testEnv struct {
	ts  *httptest.Server
	cfg config.Config
	hub *core.Hub
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.Chat.PushTimeout = 100 * time.Millisecond
	cfg.Chat.PersistBackoff = time.Millisecond
	return cfg
}

func startTestServer(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.UpsertRequest(context.Background(), "B1", "buyer", "seller", store.RequestStatusApproved))

	logger := applog.Nop()
	hub := core.NewHub(st, cfg.Chat, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := NewServer(hub, &cfg, nil, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, cfg: cfg, hub: hub}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	jwtCfg := JWTConfigFrom(&e.cfg)
	jwtCfg.TTL = time.Hour
	token, err := auth.GenerateToken(jwtCfg, userID, "")
	require.NoError(t, err)
	return token
}

func (e *testEnv) dial(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.token(t, userID))
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func (e *testEnv) get(t *testing.T, path, userID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, id string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}))
}

// frame is an outbound envelope with its data left raw.
type frame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntil reads frames until match returns true, skipping everything else.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if match(f) {
			return f
		}
	}
}

func reply(id string) func(frame) bool {
	return func(f frame) bool { return f.ID == id }
}

func event(name string) func(frame) bool {
	return func(f frame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == name }
}

func decodeData[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}
