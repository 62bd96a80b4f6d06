package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to read events from a WebSocket connection with a timeout.
func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	var ev Event
	// Set a deadline to avoid tests hanging forever.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &ev), "Failed to unmarshal Event JSON")
	return ev
}

func startServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(server.Close)

	// Convert http:// to ws://
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func subscribe(t *testing.T, wsURL, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/events?userid="+userID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readEvent(t, conn)
	require.Equal(t, SubscribedType, welcome.Type)
	require.Equal(t, userID, welcome.UserID)
	return conn
}

func TestHubRoutesEventsByOwner(t *testing.T) {
	hub, wsURL := startServer(t)

	alice := subscribe(t, wsURL, "alice")
	all := subscribe(t, wsURL, "")

	hub.Publish(Event{Type: CreatedType, UserID: "bob", DocID: "b1", Location: "/public/bob/b1.json"})
	hub.Publish(Event{Type: CreatedType, UserID: "alice", DocID: "a1", Location: "/private/alice/a1.json"})

	// alice never sees bob's event; the first thing she gets is her own.
	ev := readEvent(t, alice)
	assert.Equal(t, CreatedType, ev.Type)
	assert.Equal(t, "a1", ev.DocID)
	assert.Equal(t, "/private/alice/a1.json", ev.Location)
	assert.False(t, ev.At.IsZero())

	// The catch-all subscriber sees both, in order.
	assert.Equal(t, "b1", readEvent(t, all).DocID)
	assert.Equal(t, "a1", readEvent(t, all).DocID)

	hub.Publish(Event{Type: DeletedType, UserID: "alice", Outcome: "deleted"})
	ev = readEvent(t, alice)
	assert.Equal(t, DeletedType, ev.Type)
	assert.Equal(t, "deleted", ev.Outcome)
}

func TestHubStopDisconnects(t *testing.T) {
	hub, wsURL := startServer(t)
	conn := subscribe(t, wsURL, "alice")

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) ||
		strings.Contains(err.Error(), "close"), "unexpected error: %v", err)
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub() // Run is never started.

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.Publish(Event{Type: CreatedType, UserID: "alice"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	assert.Len(t, hub.Broadcast, broadcastBuffer)
}
