package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"token_sync/internal/engine"
)

const (
	streamSendBuffer   = 64
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// Stream pushes engine change notifications to websocket clients.
// A client that cannot keep up is disconnected.
type Stream struct {
	upgrader websocket.Upgrader
	rec      Recorder

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewStream creates a stream hub. rec may be nil.
func NewStream(rec Recorder) *Stream {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rec:     rec,
		clients: make(map[*streamClient]struct{}),
	}
}

// Publish fans ch out to every client without blocking. It matches
// engine.ChangeHandler.
func (s *Stream) Publish(ch engine.Change) {
	data, err := json.Marshal(ch)
	if err != nil {
		slog.Error("Failed to encode change", slog.Any("err", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("STREAM_CLIENT_TOO_SLOW", slog.String("remote", c.conn.RemoteAddr().String()))
			c.close()
		}
	}
}

// Handle upgrades the request and serves the client until it disconnects.
func (s *Stream) Handle(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("Stream upgrade failed", slog.Any("err", err))
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, streamSendBuffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.wg.Add(2)
	s.mu.Unlock()

	s.rec.StreamClients(n)
	slog.Info("Stream client connected", slog.String("remote", conn.RemoteAddr().String()))

	go s.readLoop(client)
	go s.writeLoop(client)
}

// readLoop discards client input and notices disconnects.
func (s *Stream) readLoop(c *streamClient) {
	defer s.wg.Done()
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) writeLoop(c *streamClient) {
	defer s.wg.Done()
	defer c.close()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Stream) remove(c *streamClient) {
	c.close()
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()

	s.rec.StreamClients(n)
	slog.Info("Stream client disconnected", slog.String("remote", c.conn.RemoteAddr().String()))
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and waits for their goroutines.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
