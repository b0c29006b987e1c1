package hsl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mkoskinen/hslproxy/internal/core/domain"
	"github.com/mkoskinen/hslproxy/internal/pkg/metrics"
)

// DefaultURL is the public HSL Digitransit routing GraphQL endpoint.
const DefaultURL = "https://api.digitransit.fi/routing/v1/routers/hsl/index/graphql"

// queryTemplate asks for the next departures of every stop matching a
// name or code. stoptimesWithoutPatterns carries both the scheduled and
// the real-time departure as second offsets into serviceDay.
const queryTemplate = `{
  stops(name: %q) {
    stoptimesWithoutPatterns(numberOfDepartures: %d) {
      stop { name code }
      serviceDay
      scheduledDeparture
      realtimeDeparture
      trip { route { shortName } }
      headsign
    }
  }
}`

// Client implements ports.DepartureSource against the Digitransit
// GraphQL API.
type Client struct {
	url  string
	http *resty.Client
}

// New creates an HSL API client. An empty url falls back to DefaultURL.
func New(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:  url,
		http: resty.New().SetTimeout(timeout),
	}
}

// Wire types for the upstream reply. Only the fields the proxy flattens
// are decoded.
type envelope struct {
	Data   *payload   `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Message string `json:"message"`
}

type payload struct {
	Stops []stopResult `json:"stops"`
}

type stopResult struct {
	Stoptimes []stoptime `json:"stoptimesWithoutPatterns"`
}

type stoptime struct {
	Stop               stopRef `json:"stop"`
	ServiceDay         int64   `json:"serviceDay"`
	ScheduledDeparture int64   `json:"scheduledDeparture"`
	RealtimeDeparture  int64   `json:"realtimeDeparture"`
	Trip               trip    `json:"trip"`
	Headsign           string  `json:"headsign"`
}

type stopRef struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type trip struct {
	Route struct {
		ShortName string `json:"shortName"`
	} `json:"route"`
}

// StopDepartures queries the HSL API for the next n departures at every
// stop matching query and flattens the reply. The result is unsorted and
// may hold up to n departures per matched stop.
func (c *Client) StopDepartures(ctx context.Context, query string, n int) ([]domain.Departure, error) {
	body := fmt.Sprintf(queryTemplate, query, n)

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/graphql").
		SetBody(body).
		Post(c.url)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("hsl request: %w", err)
	}
	if resp.StatusCode() != 200 {
		metrics.UpstreamErrors.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("%w: status %d", domain.ErrUpstream, resp.StatusCode())
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		metrics.UpstreamErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
	}
	if len(env.Errors) > 0 {
		metrics.UpstreamErrors.WithLabelValues("graphql").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrBadPayload, env.Errors[0].Message)
	}
	if env.Data == nil {
		metrics.UpstreamErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: missing data field", domain.ErrBadPayload)
	}
	if len(env.Data.Stops) == 0 {
		return nil, domain.ErrNoStops
	}

	var departures []domain.Departure
	for _, stop := range env.Data.Stops {
		for _, st := range stop.Stoptimes {
			departures = append(departures, flatten(st))
		}
	}
	return departures, nil
}

// flatten maps one stoptime onto the proxy's departure record. Departure
// offsets are seconds since the start of the service day, which is a unix
// timestamp itself.
func flatten(st stoptime) domain.Departure {
	return domain.Departure{
		Stop:        st.Stop.Code + " " + st.Stop.Name,
		Line:        st.Trip.Route.ShortName,
		Destination: st.Headsign,
		Scheduled:   time.Unix(st.ServiceDay+st.ScheduledDeparture, 0).UTC(),
		Estimated:   time.Unix(st.ServiceDay+st.RealtimeDeparture, 0).UTC(),
	}
}
