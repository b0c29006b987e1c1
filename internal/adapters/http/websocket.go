package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/mkoskinen/hslproxy/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to boards.
type wsMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Stop   string `json:"stop"`   // stop code filter (optional, "" = all watched stops)
}

// boardSubscription is a cancelable board subscription.
type boardSubscription interface {
	Unsubscribe() error
}

// boardStream delivers published board payloads for a subject.
type boardStream interface {
	Subscribe(subject string, cb func(data []byte)) (boardSubscription, error)
}

// natsStream adapts a NATS connection to boardStream.
type natsStream struct {
	nc BoardConn
}

func (s natsStream) Subscribe(subject string, cb func(data []byte)) (boardSubscription, error) {
	return s.nc.Subscribe(subject, func(msg *nats.Msg) {
		cb(msg.Data)
	})
}

// boardSubject maps a stop code to its broker subject. An empty code
// means every board the watcher publishes.
func boardSubject(stop string) string {
	if stop == "" {
		return "hsl.board.>"
	}
	return "hsl.board." + stop
}

// wsSession tracks one client's subscriptions and handles its
// subscribe/unsubscribe messages. Not safe for concurrent handle calls;
// the read loop is single-threaded, relayed writes go through write.
type wsSession struct {
	stream boardStream
	write  func(v interface{}) error
	subs   map[string]boardSubscription
}

func newWSSession(stream boardStream, write func(v interface{}) error) *wsSession {
	return &wsSession{
		stream: stream,
		write:  write,
		subs:   make(map[string]boardSubscription),
	}
}

// subscribe adds a board subscription and relays its payloads to the
// client verbatim.
func (s *wsSession) subscribe(subject string) error {
	sub, err := s.stream.Subscribe(subject, func(data []byte) {
		_ = s.write(json.RawMessage(data))
	})
	if err != nil {
		return err
	}
	s.subs[subject] = sub
	return nil
}

// handle dispatches one client message.
func (s *wsSession) handle(raw []byte) {
	var m wsMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		_ = s.write(map[string]string{"error": "invalid JSON"})
		return
	}

	subject := boardSubject(m.Stop)

	switch m.Action {
	case "subscribe":
		if _, exists := s.subs[subject]; exists {
			_ = s.write(map[string]string{"status": "already subscribed", "subject": subject})
			return
		}
		if err := s.subscribe(subject); err != nil {
			_ = s.write(map[string]string{"error": "subscribe failed: " + err.Error()})
			return
		}
		_ = s.write(map[string]string{"status": "subscribed", "subject": subject})

	case "unsubscribe":
		sub, exists := s.subs[subject]
		if !exists {
			_ = s.write(map[string]string{"error": "not subscribed to " + subject})
			return
		}
		_ = sub.Unsubscribe()
		delete(s.subs, subject)
		_ = s.write(map[string]string{"status": "unsubscribed", "subject": subject})

	default:
		_ = s.write(map[string]string{"error": "unknown action: " + m.Action})
	}
}

// close drops every remaining subscription.
func (s *wsSession) close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = make(map[string]boardSubscription)
}

// WebSocketHandler returns a handler that upgrades to WebSocket and
// relays board updates from NATS to connected clients.
// Clients send JSON: {"action":"subscribe","stop":"H3030"}. An empty
// stop means every board the watcher publishes.
func WebSocketHandler(nc BoardConn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Debug("ws client connected", "remote", remoteAddr)

		// Thread-safe write: relayed boards and replies interleave with
		// the keep-alive ping.
		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		session := newWSSession(natsStream{nc: nc}, writeJSON)
		defer session.close()

		// Auto-subscribe to every board by default
		if err := session.subscribe(boardSubject("")); err != nil {
			slog.Warn("ws default subscribe failed", "error", err)
			return
		}

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read client messages for subscribe/unsubscribe
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			session.handle(msg)
		}

		slog.Debug("ws client disconnected", "remote", remoteAddr)
	}
}
