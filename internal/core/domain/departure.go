package domain

import (
	"errors"
	"sort"
	"time"
)

// Errors returned by departure sources. Handlers map these onto HTTP
// statuses, so the adapter must wrap its failures with one of them.
var (
	// ErrNoStops means the upstream matched no stops for the query.
	ErrNoStops = errors.New("no stops matched the query")
	// ErrUpstream means the HSL API answered with a non-200 status.
	ErrUpstream = errors.New("hsl api request failed")
	// ErrBadPayload means the HSL API answered 200 but the body could
	// not be interpreted.
	ErrBadPayload = errors.New("hsl api returned an unparseable payload")
)

// Departure is one upcoming vehicle departure at a stop, flattened from
// the nested HSL stoptime shape.
type Departure struct {
	Stop        string    `json:"stop"`        // "H3030 Sörnäinen" — code and name joined
	Line        string    `json:"line"`        // route short name, e.g. "550"
	Destination string    `json:"destination"` // trip headsign, may be empty
	Scheduled   time.Time `json:"scheduled"`
	Estimated   time.Time `json:"estimated"` // real-time estimate; equals Scheduled without live data
}

// DepartureBoard is the envelope returned to callers.
type DepartureBoard struct {
	Departures []Departure `json:"departures"`
	Timestamp  time.Time   `json:"timestamp"`
}

// SortByEstimate orders departures by their real-time estimate, earliest
// first. The sort is stable so departures with identical estimates keep
// the upstream order.
func SortByEstimate(departures []Departure) {
	sort.SliceStable(departures, func(i, j int) bool {
		return departures[i].Estimated.Before(departures[j].Estimated)
	})
}
