package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mkoskinen/hslproxy/internal/core/domain"
)

// boardSubjectPrefix is followed by the stop code, e.g. "hsl.board.H3030".
const boardSubjectPrefix = "hsl.board."

// Publisher implements ports.BoardPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the board stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Boards go stale within minutes, so retention is short. Interest
	// retention drops messages nobody subscribes to.
	cfg := nats.StreamConfig{
		Name:      "DEPARTURE_BOARDS",
		Subjects:  []string{boardSubjectPrefix + ">"},
		Retention: nats.InterestPolicy,
		MaxAge:    10 * time.Minute,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist — try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishBoard publishes a refreshed departure board for one stop.
func (p *Publisher) PublishBoard(ctx context.Context, stopCode string, board *domain.DepartureBoard) error {
	data, err := json.Marshal(board)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(boardSubjectPrefix+stopCode, data)
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (the WebSocket
// relay manages its own subscriptions).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
