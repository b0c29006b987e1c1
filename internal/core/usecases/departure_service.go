package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkoskinen/hslproxy/internal/core/domain"
	"github.com/mkoskinen/hslproxy/internal/core/ports"
)

// DepartureService builds departure boards from the upstream source,
// optionally serving flattened results from cache.
type DepartureService struct {
	source   ports.DepartureSource
	cache    ports.CacheService
	cacheTTL int
}

// NewDepartureService creates a new DepartureService. cache may be nil.
func NewDepartureService(source ports.DepartureSource, cache ports.CacheService, cacheTTLSeconds int) *DepartureService {
	if cacheTTLSeconds <= 0 {
		cacheTTLSeconds = 10
	}
	return &DepartureService{source: source, cache: cache, cacheTTL: cacheTTLSeconds}
}

// Board returns the next n departures across every stop matching query,
// sorted by their real-time estimate. n is clamped to [1, 50]; the
// default of 5 for an absent parameter lives in the HTTP handler.
// The envelope timestamp is always the render time, even on a cache hit.
func (s *DepartureService) Board(ctx context.Context, query string, n int) (*domain.DepartureBoard, error) {
	if n < 1 {
		n = 1
	}
	if n > 50 {
		n = 50
	}

	cacheKey := fmt.Sprintf("board:%s:%d", query, n)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var departures []domain.Departure
			if err := json.Unmarshal(data, &departures); err == nil {
				return s.envelope(departures), nil
			}
		}
	}

	departures, err := s.source.StopDepartures(ctx, query, n)
	if err != nil {
		return nil, err
	}

	// A single query can match several stops, each contributing up to n
	// departures. Merge, order by estimate, and keep the first n.
	domain.SortByEstimate(departures)
	if len(departures) > n {
		departures = departures[:n]
	}

	if s.cache != nil {
		if data, err := json.Marshal(departures); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.cacheTTL)
		}
	}

	return s.envelope(departures), nil
}

func (s *DepartureService) envelope(departures []domain.Departure) *domain.DepartureBoard {
	if departures == nil {
		departures = []domain.Departure{}
	}
	return &domain.DepartureBoard{
		Departures: departures,
		Timestamp:  time.Now().UTC(),
	}
}
