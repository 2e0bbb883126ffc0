package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_sync/internal/domain"
	"token_sync/internal/engine"
	"token_sync/internal/query"
)

func startStream(t *testing.T) (*Stream, *httptest.Server, *recordingRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := newFakeEngine()
	rec := &recordingRecorder{}
	stream := NewStream(rec)
	r := NewRouter(Deps{Engine: eng, Service: query.NewService(eng), Stream: stream, Recorder: rec})
	return stream, httptest.NewServer(r), rec
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestStream_DeliversChanges(t *testing.T) {
	stream, srv, rec := startStream(t)
	defer srv.Close()
	defer stream.Close()

	conn := dialStream(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, time.Second, 5*time.Millisecond)

	stream.Publish(engine.Change{Seq: 3, Kind: engine.ChangeUpdated, Category: domain.CategoryMigrated, TokenIDs: []string{"m1"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got engine.Change
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, uint64(3), got.Seq)
	assert.Equal(t, engine.ChangeUpdated, got.Kind)
	assert.Equal(t, []string{"m1"}, got.TokenIDs)

	rec.mu.Lock()
	assert.Equal(t, 1, rec.clients)
	rec.mu.Unlock()
}

func TestStream_ClientDisconnect(t *testing.T) {
	stream, srv, _ := startStream(t)
	defer srv.Close()
	defer stream.Close()

	conn := dialStream(t, srv)
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 0 }, time.Second, 5*time.Millisecond)

	// Publishing with no clients is a no-op.
	stream.Publish(engine.Change{Seq: 1, Kind: engine.ChangeInserted})
}

func TestStream_CloseDisconnectsClients(t *testing.T) {
	stream, srv, _ := startStream(t)
	defer srv.Close()

	conn := dialStream(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, time.Second, 5*time.Millisecond)

	stream.Close()
	assert.Zero(t, stream.Clients())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// New clients are refused once closed.
	late := dialStream(t, srv)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}
