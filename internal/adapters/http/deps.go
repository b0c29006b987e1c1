package http

import (
	"github.com/nats-io/nats.go"

	"github.com/mkoskinen/hslproxy/internal/core/ports"
	"github.com/mkoskinen/hslproxy/internal/core/usecases"
)

// BoardConn is the slice of a NATS connection the HTTP layer needs:
// readiness probing and board subscriptions for the WebSocket relay.
type BoardConn interface {
	IsConnected() bool
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Boards *usecases.DepartureService
	NATS   BoardConn
	Cache  ports.CacheService
}
