package slack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	livia "github.com/lucastzuka/livia"
)

const maxReconnectWait = 30 * time.Second

// Handler consumes one platform event. The engine's HandleEvent matches.
type Handler func(ctx context.Context, ev livia.Event)

// Socket receives events over Slack Socket Mode and hands them to a
// Handler. Envelopes are acked before the handler runs; a redelivery after
// a crash is dropped by the engine's dedupe.
type Socket struct {
	client  *Client
	handler Handler
	logger  *slog.Logger
	dialer  *websocket.Dialer
}

// SocketOption configures a Socket.
type SocketOption func(*Socket)

// WithSocketLogger sets the structured logger. Defaults to a no-op logger.
func WithSocketLogger(l *slog.Logger) SocketOption {
	return func(s *Socket) { s.logger = l }
}

// WithDialer replaces the websocket dialer, used by tests.
func WithDialer(d *websocket.Dialer) SocketOption {
	return func(s *Socket) { s.dialer = d }
}

// NewSocket creates a Socket Mode listener on top of an API client carrying
// an app-level token.
func NewSocket(client *Client, handler Handler, opts ...SocketOption) *Socket {
	s := &Socket{
		client:  client,
		handler: handler,
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(discardHandler{})
	}
	return s
}

// Run connects and processes envelopes until ctx is cancelled, reconnecting
// with capped backoff. Slack rotates Socket Mode connections routinely, so
// disconnects are part of normal operation.
func (s *Socket) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		start := time.Now()
		err := s.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A connection that lived for a while earns a fresh backoff.
		if time.Since(start) > time.Minute {
			backoff = time.Second
		}
		s.logger.Warn("socket mode connection lost", "error", err, "retry_in", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxReconnectWait)
	}
}

// runConn serves one websocket connection until it fails or the server
// requests a reconnect.
func (s *Socket) runConn(ctx context.Context) error {
	wsURL, err := s.client.connectionsOpen(ctx)
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	sc := &safeConn{Conn: conn}
	defer sc.Close()

	// Unblock the read loop when ctx ends.
	stop := context.AfterFunc(ctx, func() { sc.Close() })
	defer stop()

	for {
		_, raw, err := sc.ReadMessage()
		if err != nil {
			return err
		}

		var env socketEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("socket mode envelope decode failed", "error", err)
			continue
		}

		// Ack first; Slack redelivers unacked envelopes with backoff.
		if env.EnvelopeID != "" {
			if err := sc.WriteJSON(socketAck{EnvelopeID: env.EnvelopeID}); err != nil {
				return err
			}
		}

		switch env.Type {
		case "hello":
			s.logger.Info("socket mode connected")

		case "disconnect":
			return fmt.Errorf("server requested disconnect: %s", env.Reason)

		case "events_api":
			var payload eventsPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				s.logger.Warn("events payload decode failed", "error", err)
				continue
			}
			s.handler(ctx, payload.Event)

		default:
			// interactive, slash_commands: acked above, not handled.
		}
	}
}

// safeConn serializes writes. Acks and protocol pings can race on the same
// connection.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *safeConn) WriteJSON(v any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteJSON(v)
}
