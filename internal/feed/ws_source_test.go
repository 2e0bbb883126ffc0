package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_sync/internal/domain"
	"token_sync/internal/event"
	"token_sync/internal/infra"
)

// upstream is a fake feed server recording track requests.
type upstream struct {
	mu     sync.Mutex
	tracks []TrackMessage
	send   chan []byte
	srv    *httptest.Server
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{send: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var tm TrackMessage
				if json.Unmarshal(data, &tm) == nil {
					u.mu.Lock()
					u.tracks = append(u.tracks, tm)
					u.mu.Unlock()
				}
			}
		}()

		for {
			select {
			case msg := <-u.send:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))
	return u
}

func (u *upstream) url() string { return strings.Replace(u.srv.URL, "http://", "ws://", 1) }

func (u *upstream) tracked() []TrackMessage {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]TrackMessage, len(u.tracks))
	copy(out, u.tracks)
	return out
}

func TestWebSocketSource_ResendsMembershipOnConnect(t *testing.T) {
	up := newUpstream(t)
	defer up.srv.Close()

	src := NewWebSocketSource(up.url(), nil)
	src.SetTokenIDs(domain.CategoryNewPairs, []string{"a", "b"})

	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()

	require.Eventually(t, func() bool { return len(up.tracked()) >= len(domain.Categories) }, 2*time.Second, 10*time.Millisecond)

	tracks := up.tracked()
	assert.Equal(t, "track", tracks[0].Op)
	assert.Equal(t, domain.CategoryNewPairs, tracks[0].Category)
	assert.Equal(t, []string{"a", "b"}, tracks[0].IDs)
	assert.Empty(t, tracks[2].IDs)
}

func TestWebSocketSource_ForwardsSetTokenIDs(t *testing.T) {
	up := newUpstream(t)
	defer up.srv.Close()

	src := NewWebSocketSource(up.url(), nil)
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()
	require.Eventually(t, src.Connected, 2*time.Second, 10*time.Millisecond)

	src.SetTokenIDs(domain.CategoryMigrated, []string{"m1"})

	require.Eventually(t, func() bool {
		for _, tm := range up.tracked() {
			if tm.Category == domain.CategoryMigrated && len(tm.IDs) == 1 && tm.IDs[0] == "m1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketSource_PublishesDecodedEvents(t *testing.T) {
	up := newUpstream(t)
	defer up.srv.Close()

	src := NewWebSocketSource(up.url(), nil)
	rec := &countingRecorder{}
	src.SetRecorder(rec)
	var s sink
	src.Subscribe(s.add)

	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()
	require.Eventually(t, src.Connected, 2*time.Second, 10*time.Millisecond)

	up.send <- []byte(`{"type":"unknown","payload":{}}`)
	up.send <- []byte(`{"type":"price_update","payload":{"id":"t1","field":"volume","value":10,"direction":"up"}}`)

	require.Eventually(t, func() bool { return len(s.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	pu, ok := s.snapshot()[0].(*event.PriceUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "t1", pu.Update.ID)
	assert.Equal(t, 1, rec.decodeErrors())
}

func TestWebSocketSource_SetTokenIDsWhileDisconnected(t *testing.T) {
	src := NewWebSocketSource("ws://127.0.0.1:1", nil)
	src.SetTokenIDs(domain.CategoryNewPairs, []string{"a"})

	assert.False(t, src.Connected())
	assert.Equal(t, []string{"a"}, src.ids.get(domain.CategoryNewPairs))
}

func TestWebSocketSource_DisconnectIdempotent(t *testing.T) {
	src := NewWebSocketSource("ws://127.0.0.1:1", infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		Name:             "feed",
		FailureThreshold: 2,
		Timeout:          time.Second,
	}))
	src.SetBackoff(infra.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond})

	require.NoError(t, src.Connect(context.Background()))
	require.NoError(t, src.Connect(context.Background()))
	time.Sleep(20 * time.Millisecond)
	src.Disconnect()
	src.Disconnect()
	assert.False(t, src.Connected())
}
