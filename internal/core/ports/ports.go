package ports

import (
	"context"

	"github.com/mkoskinen/hslproxy/internal/core/domain"
)

// DepartureSource fetches upcoming departures for every stop matching a
// query. The query may be a stop code ("H3030") or a name fragment
// ("malm"); matching happens upstream. n is the per-stop departure count
// requested from the source, not a cap on the merged result.
type DepartureSource interface {
	StopDepartures(ctx context.Context, query string, n int) ([]domain.Departure, error)
}

// CacheService provides read-through caching. Entries expire by TTL;
// nothing invalidates a board early, so there is no delete.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
}

// BoardPublisher publishes refreshed departure boards to a message broker.
type BoardPublisher interface {
	PublishBoard(ctx context.Context, stopCode string, board *domain.DepartureBoard) error
}
