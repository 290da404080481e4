package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/events"
	"github.com/nfrund/relay/internal/server"
	"github.com/nfrund/relay/internal/testutils"
)

const allowedOrigin = "http://allowed.test"

// setupIntegrationTest boots a relay on an httptest server. env overrides
// the test config; fs, when non-nil, backs the origins file.
func setupIntegrationTest(t *testing.T, env map[string]string, fs afero.Fs) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := testutils.ConfigForTests(t, env)
	opts := []server.Option{server.WithLogger(testutils.DiscardLogger())}
	if fs != nil {
		opts = append(opts, server.WithFs(fs))
	}
	s, err := server.New(cfg, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Boot(ctx))

	ts := httptest.NewServer(s.E)
	t.Cleanup(func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = s.Bridge.Shutdown(shutdownCtx)
		ts.Close()
		cancel()
		_ = s.PubSub.Close()
	})
	return s, ts
}

func wsURL(ts *httptest.Server, userID, serverID string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?userId=" + userID + "&serverId=" + serverID
}

// dial connects as userID from origin and waits until the session is
// registered.
func dial(t *testing.T, s *server.Server, ts *httptest.Server, userID, serverID, origin string) *websocket.Conn {
	t.Helper()
	before := s.Directory.Count()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, userID, serverID), header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	})

	require.Eventually(t, func() bool { return s.Directory.Count() > before }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := events.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// read returns the next envelope with its payload decoded into a map.
func read(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := events.Decode(p)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return env.Event, data
}
