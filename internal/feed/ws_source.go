package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"token_sync/internal/domain"
	"token_sync/internal/infra"
)

// WebSocketSource reads feed messages from an upstream websocket server and
// keeps it informed of the ids the engine holds.
type WebSocketSource struct {
	Hub

	url     string
	breaker *infra.CircuitBreaker
	backoff *infra.Backoff
	ids     membership

	mu     sync.Mutex
	worker *infra.WSWorker
}

// NewWebSocketSource creates a disconnected source. breaker may be nil.
func NewWebSocketSource(url string, breaker *infra.CircuitBreaker) *WebSocketSource {
	return &WebSocketSource{url: url, breaker: breaker}
}

// SetBackoff overrides the reconnect schedule. Call before Connect.
func (s *WebSocketSource) SetBackoff(b infra.Backoff) { s.backoff = &b }

// ID returns the worker identifier.
func (s *WebSocketSource) ID() string { return "FEED" }

// URL returns the upstream endpoint.
func (s *WebSocketSource) URL() string { return s.url }

// Connect starts the connection loop.
func (s *WebSocketSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != nil {
		return nil
	}
	w := infra.NewWSWorker(s, s.breaker)
	if s.backoff != nil {
		w.SetBackoff(*s.backoff)
	}
	s.worker = w
	w.Start(ctx)
	return nil
}

// Disconnect stops the connection loop and waits for it.
func (s *WebSocketSource) Disconnect() {
	s.mu.Lock()
	w := s.worker
	s.worker = nil
	s.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// Connected reports whether an upstream connection is open.
func (s *WebSocketSource) Connected() bool {
	w := s.current()
	return w != nil && w.Connected()
}

// SetTokenIDs records the membership and forwards it upstream when connected.
func (s *WebSocketSource) SetTokenIDs(c domain.Category, ids []string) {
	s.ids.set(c, ids)
	if err := s.sendTrack(c, ids); err != nil && !errors.Is(err, infra.ErrNotConnected) {
		slog.Warn("Feed track failed", slog.String("category", string(c)), slog.Any("err", err))
	}
}

// OnConnect resends the membership of every category.
func (s *WebSocketSource) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	for _, c := range domain.Categories {
		if err := s.sendTrack(c, s.ids.get(c)); err != nil {
			return err
		}
	}
	return nil
}

// OnMessage decodes and publishes one upstream message.
func (s *WebSocketSource) OnMessage(ctx context.Context, msg []byte) {
	ev, err := Decode(msg)
	if err != nil {
		s.recorder().FeedDecodeError()
		slog.Debug("Feed message dropped", slog.Any("err", err))
		return
	}
	s.Publish(ev)
}

// OnPing sends a control ping; the read deadline catches a dead peer.
func (s *WebSocketSource) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (s *WebSocketSource) sendTrack(c domain.Category, ids []string) error {
	w := s.current()
	if w == nil {
		return infra.ErrNotConnected
	}
	b, err := json.Marshal(NewTrackMessage(c, ids))
	if err != nil {
		return err
	}
	return w.Write(websocket.TextMessage, b)
}

func (s *WebSocketSource) current() *infra.WSWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker
}
