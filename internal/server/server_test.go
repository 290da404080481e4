package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/events"
	"github.com/nfrund/relay/internal/server"
	"github.com/nfrund/relay/internal/testutils"
)

func TestHealth(t *testing.T) {
	_, ts := setupIntegrationTest(t, nil, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, server.HealthMessage, string(body))
}

func TestHealth_Root(t *testing.T) {
	_, ts := setupIntegrationTest(t, nil, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, server.HealthMessage, string(body))
}

func TestBareOptions(t *testing.T) {
	_, ts := setupIntegrationTest(t, nil, nil)

	for _, path := range []string{"/", "/health", "/anything"} {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
	}
}

func TestStats(t *testing.T) {
	s, ts := setupIntegrationTest(t, nil, nil)

	alice := dial(t, s, ts, "alice", "s1", allowedOrigin)
	emit(t, alice, events.JoinChannelEvent, "general")
	require.Eventually(t, func() bool { return s.Presence.IsOnline("alice") && s.Registry.Stats().Topics == 3 },
		2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats server.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Sockets)
	assert.Equal(t, 3, stats.Registry.Topics, "user, server and channel topics")
	assert.Equal(t, 3, stats.Registry.Memberships)
	assert.Equal(t, 1, stats.Presence.OnlineUsers)
	assert.EqualValues(t, 1, stats.Router.Dispatched)
}

func TestCORS(t *testing.T) {
	_, ts := setupIntegrationTest(t, nil, nil)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	t.Run("allowed origin", func(t *testing.T) {
		resp := preflight(allowedOrigin)
		assert.Equal(t, allowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		resp := preflight("http://evil.test")
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestNew_RejectsBadPattern(t *testing.T) {
	cfg := testutils.ConfigForTests(t, map[string]string{"ALLOWED_ORIGIN_PATTERNS": "https://[.example"})
	_, err := server.New(cfg, server.WithLogger(testutils.DiscardLogger()))
	require.Error(t, err)
}
