package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	url            string
	onConnectCalls atomic.Int32
	mu             sync.Mutex
	messages       [][]byte
}

func (m *mockHandler) URL() string { return m.url }
func (m *mockHandler) ID() string  { return "MOCK" }
func (m *mockHandler) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	m.onConnectCalls.Add(1)
	return nil
}
func (m *mockHandler) OnMessage(ctx context.Context, msg []byte) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
}
func (m *mockHandler) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

func (m *mockHandler) received() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func createMockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func TestWSWorker_Connect(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"test"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	handler := &mockHandler{url: httpToWS(server.URL)}
	worker := NewWSWorker(handler, nil)
	worker.ReadTimeout = 500 * time.Millisecond

	worker.Start(context.Background())
	defer worker.Stop()

	assert.Eventually(t, func() bool { return handler.received() > 0 }, time.Second, 5*time.Millisecond)
	assert.Positive(t, handler.onConnectCalls.Load())
}

func TestWSWorker_GracefulShutdown(t *testing.T) {
	serverClosed := make(chan struct{})
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		<-serverClosed
	})
	defer server.Close()
	defer close(serverClosed)

	handler := &mockHandler{url: httpToWS(server.URL)}
	worker := NewWSWorker(handler, nil)
	worker.PingInterval = 10 * time.Millisecond

	worker.Start(context.Background())
	require.Eventually(t, worker.Connected, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop did not return within timeout")
	}
	assert.False(t, worker.Connected())
}

func TestWSWorker_Write(t *testing.T) {
	receivedMsg := make(chan []byte, 1)

	server := createMockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			receivedMsg <- msg
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	handler := &mockHandler{url: httpToWS(server.URL)}
	worker := NewWSWorker(handler, nil)

	assert.ErrorIs(t, worker.Write(websocket.TextMessage, []byte("x")), ErrNotConnected)

	worker.Start(context.Background())
	defer worker.Stop()
	require.Eventually(t, worker.Connected, time.Second, 5*time.Millisecond)

	testMsg := []byte(`{"op":"track"}`)
	require.NoError(t, worker.Write(websocket.TextMessage, testMsg))

	select {
	case msg := <-receivedMsg:
		assert.Equal(t, string(testMsg), string(msg))
	case <-time.After(time.Second):
		t.Error("server did not receive message")
	}
}

func TestWSWorker_BreakerOpensOnDialFailures(t *testing.T) {
	// Nothing listens here; every dial fails fast.
	server := httptest.NewServer(http.NotFoundHandler())
	url := httpToWS(server.URL)
	server.Close()

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "feed",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})
	worker := NewWSWorker(&mockHandler{url: url}, breaker)
	worker.SetBackoff(Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond})

	worker.Start(context.Background())
	defer worker.Stop()

	assert.Eventually(t, func() bool { return breaker.State() == BreakerOpen }, time.Second, 5*time.Millisecond)
	assert.False(t, worker.Connected())
}
