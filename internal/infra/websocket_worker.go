package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Write while no connection is open.
var ErrNotConnected = errors.New("ws not connected")

// WSHandler supplies the feed-specific parts of a WSWorker.
type WSHandler interface {
	ID() string
	URL() string
	// OnConnect runs after every successful dial, e.g. to resend subscriptions.
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	OnMessage(ctx context.Context, msg []byte)
	OnPing(ctx context.Context, conn *websocket.Conn) error
}

// WSWorker keeps a client WebSocket connection alive. It reconnects with
// exponential backoff, stops dialing while the circuit breaker is open and
// serialises writes.
type WSWorker struct {
	handler WSHandler
	breaker *CircuitBreaker
	backoff Backoff

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

// NewWSWorker creates a worker. breaker may be nil.
func NewWSWorker(handler WSHandler, breaker *CircuitBreaker) *WSWorker {
	return &WSWorker{
		handler:          handler,
		breaker:          breaker,
		backoff:          DefaultBackoff,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// SetBackoff overrides the reconnect schedule. Call before Start.
func (w *WSWorker) SetBackoff(b Backoff) { w.backoff = b }

// Start initiates the connection loop.
func (w *WSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for its goroutines.
func (w *WSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

// Connected reports whether a connection is currently open.
func (w *WSWorker) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

func (w *WSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if w.breaker != nil && !w.breaker.Allow() {
			if !sleepCtx(ctx, w.breaker.RemainingOpen()+10*time.Millisecond) {
				return
			}
			continue
		}

		if err := w.connect(ctx); err != nil {
			if w.breaker != nil {
				w.breaker.RecordFailure()
			}
			delay := w.backoff.Delay(retry)
			slog.Warn("WS Connection failed",
				slog.String("id", w.handler.ID()),
				slog.Any("err", err),
				slog.Int("retry", retry),
				slog.Duration("delay", delay))
			retry++

			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		if w.breaker != nil {
			w.breaker.RecordSuccess()
		}
		retry = 0 // Reset on successful connect
		w.process(ctx)
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: w.HandshakeTimeout}
	header := make(http.Header)
	header.Set("User-Agent", UserAgent())

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), header)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	if w.PingInterval > 0 {
		w.wg.Add(1)
		go w.pingLoop(ctx, conn)
	}

	slog.Info("WS Connected", slog.String("id", w.handler.ID()), slog.String("url", w.handler.URL()))
	return nil
}

func (w *WSWorker) process(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		if w.ReadTimeout > 0 {
			c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		}
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS Read error", slog.String("id", w.handler.ID()), slog.Any("err", err))
			}
			w.close()
			return
		}

		w.handler.OnMessage(ctx, msg)
	}
}

// pingLoop exits when ctx ends or conn is replaced or closed.
func (w *WSWorker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			current := w.conn
			w.mu.RUnlock()
			if current != conn {
				return
			}
			if err := w.handler.OnPing(ctx, conn); err != nil {
				slog.Warn("WS Ping error", slog.String("id", w.handler.ID()), slog.Any("err", err))
				w.close()
				return
			}
		}
	}
}

// Write sends one message on the current connection.
func (w *WSWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return ErrNotConnected
	}
	return c.WriteMessage(msgType, data)
}

func (w *WSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
