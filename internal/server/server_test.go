package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/core"
)

func newTestServer(t *testing.T, origins []string) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("0", origins, func() interface{} {
		return map[string]string{"session": "Subscribed"}
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_State(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Subscribed", body["session"])
}

func TestServer_ReadOnly(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/state", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_WebSocketMirrorsBus(t *testing.T) {
	s, ts := newTestServer(t, nil)
	eb := core.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Forward(ctx, eb)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "state", first.Type)

	require.Eventually(t, func() bool { return s.Hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	// Forward subscribes asynchronously; publish until the message shows up.
	received := make(chan Message, 1)
	go func() {
		var m Message
		if err := conn.ReadJSON(&m); err == nil {
			received <- m
		}
	}()
	require.Eventually(t, func() bool {
		eb.Publish(core.Event{Type: core.ColorAppliedEvent, Payload: "10,0,0"})
		select {
		case m := <-received:
			assert.Equal(t, string(core.ColorAppliedEvent), m.Type)
			assert.Equal(t, "10,0,0", m.Payload)
			return true
		default:
			return false
		}
	}, time.Second, 20*time.Millisecond)
}

func TestServer_OriginCheck(t *testing.T) {
	_, ts := newTestServer(t, []string{"http://allowed.local"})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.local"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://allowed.local"}})
	require.NoError(t, err)
	conn.Close()
}
