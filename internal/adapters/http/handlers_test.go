package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	handler "github.com/mkoskinen/hslproxy/internal/adapters/http"
	"github.com/mkoskinen/hslproxy/internal/core/domain"
	"github.com/mkoskinen/hslproxy/internal/core/usecases"
)

// ---- Mock departure source ----

type mockSource struct {
	departuresFn func(ctx context.Context, query string, n int) ([]domain.Departure, error)
}

func (m *mockSource) StopDepartures(ctx context.Context, query string, n int) ([]domain.Departure, error) {
	if m.departuresFn != nil {
		return m.departuresFn(ctx, query, n)
	}
	return nil, nil
}

// ---- Readiness fakes ----

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return errors.New("connection refused")
}

type downNATS struct{}

func (downNATS) IsConnected() bool { return false }

func (downNATS) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return nil, nats.ErrConnectionClosed
}

// ---- Test helpers ----

func setupApp(src *mockSource) *fiber.App {
	return setupAppWithDeps(&handler.Dependencies{
		Boards: usecases.NewDepartureService(src, nil, 10),
	})
}

func setupAppWithDeps(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func sampleBoard(base time.Time) []domain.Departure {
	return []domain.Departure{
		{
			Stop:        "H3030 Malmin asema",
			Line:        "550",
			Destination: "Westendinasema",
			Scheduled:   base,
			Estimated:   base.Add(2 * time.Minute),
		},
		{
			Stop:        "H3030 Malmin asema",
			Line:        "71",
			Destination: "Rautatientori",
			Scheduled:   base.Add(5 * time.Minute),
			Estimated:   base.Add(5 * time.Minute),
		},
	}
}

// ---- Ping ----

func TestPing(t *testing.T) {
	app := setupApp(&mockSource{})

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Pong time.Time `json:"pong"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if time.Since(body.Pong) > time.Minute {
		t.Errorf("pong timestamp not fresh: %v", body.Pong)
	}
}

// ---- Departures ----

func TestDepartures_Success(t *testing.T) {
	base := time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC)
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			if query != "H3030" {
				t.Errorf("expected query H3030, got %q", query)
			}
			return sampleBoard(base), nil
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=H3030&n=3", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var board struct {
		Departures []struct {
			Stop        string    `json:"stop"`
			Line        string    `json:"line"`
			Destination string    `json:"destination"`
			Scheduled   time.Time `json:"scheduled"`
			Estimated   time.Time `json:"estimated"`
		} `json:"departures"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		t.Fatal(err)
	}

	if len(board.Departures) != 2 {
		t.Fatalf("expected 2 departures, got %d", len(board.Departures))
	}
	first := board.Departures[0]
	if first.Stop != "H3030 Malmin asema" || first.Line != "550" || first.Destination != "Westendinasema" {
		t.Errorf("unexpected first departure: %+v", first)
	}
	if !first.Estimated.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("unexpected estimate: %v", first.Estimated)
	}
	if time.Since(board.Timestamp) > time.Minute {
		t.Errorf("timestamp not fresh: %v", board.Timestamp)
	}

	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=10" {
		t.Errorf("unexpected Cache-Control: %q", cc)
	}
}

func TestDepartures_TimestampIsRFC3339UTC(t *testing.T) {
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			return []domain.Departure{}, nil
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=H3030", nil)
	resp, _ := app.Test(req, -1)

	var raw struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q is not RFC 3339: %v", raw.Timestamp, err)
	}
	if !strings.HasSuffix(raw.Timestamp, "Z") {
		t.Errorf("timestamp %q is not UTC", raw.Timestamp)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("timestamp not fresh: %v", ts)
	}
}

func TestDepartures_MissingStops(t *testing.T) {
	app := setupApp(&mockSource{})

	req := httptest.NewRequest("GET", "/departures", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var apiErr handler.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatal(err)
	}
	if apiErr.Code != "bad_request" {
		t.Errorf("expected code bad_request, got %q", apiErr.Code)
	}
}

func TestDepartures_NoStopsMatched(t *testing.T) {
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			return nil, domain.ErrNoStops
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=nosuchstop", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDepartures_UpstreamFailure(t *testing.T) {
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			return nil, domain.ErrUpstream
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=H3030", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 502 {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	var apiErr handler.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatal(err)
	}
	if apiErr.Code != "bad_gateway" {
		t.Errorf("expected code bad_gateway, got %q", apiErr.Code)
	}
}

func TestDepartures_UnparseablePayload(t *testing.T) {
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			return nil, domain.ErrBadPayload
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=H3030", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestDepartures_CountIsCapped(t *testing.T) {
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			if n != 50 {
				t.Errorf("expected n capped to 50, got %d", n)
			}
			return nil, nil
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=H3030&n=999", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDepartures_ZeroCountClampedToOne(t *testing.T) {
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			if n != 1 {
				t.Errorf("expected n clamped to 1, got %d", n)
			}
			return nil, nil
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=H3030&n=0", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDepartures_ErrorLogsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			return nil, domain.ErrUpstream
		},
	})

	req := httptest.NewRequest("GET", "/departures?stops=H3030", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 502 {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if !strings.Contains(buf.String(), `"request_id"`) {
		t.Errorf("error log is missing the request ID: %s", buf.String())
	}
}

// ---- GraphQL ----

func TestGraphQL_Departures(t *testing.T) {
	base := time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC)
	app := setupApp(&mockSource{
		departuresFn: func(ctx context.Context, query string, n int) ([]domain.Departure, error) {
			return sampleBoard(base), nil
		},
	})

	body := `{"query": "{ departures(stops: \"H3030\", n: 2) { departures { line destination } timestamp } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Departures struct {
				Departures []struct {
					Line        string `json:"line"`
					Destination string `json:"destination"`
				} `json:"departures"`
				Timestamp string `json:"timestamp"`
			} `json:"departures"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected graphql errors: %v", result.Errors)
	}
	if len(result.Data.Departures.Departures) != 2 {
		t.Fatalf("expected 2 departures, got %d", len(result.Data.Departures.Departures))
	}
	if result.Data.Departures.Departures[0].Line != "550" {
		t.Errorf("unexpected first line: %+v", result.Data.Departures.Departures[0])
	}
	if _, err := time.Parse(time.RFC3339, result.Data.Departures.Timestamp); err != nil {
		t.Errorf("timestamp not RFC 3339: %v", err)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(&mockSource{})

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReady_OptionalCollaborators(t *testing.T) {
	app := setupApp(&mockSource{})

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 when nothing is configured, got %d", resp.StatusCode)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ready" {
		t.Errorf("expected ready, got %q", body.Status)
	}
	if body.Checks["cache"] != "not configured" || body.Checks["nats"] != "not configured" {
		t.Errorf("unexpected checks: %v", body.Checks)
	}
}

func TestReady_FailingCacheBlocksReadiness(t *testing.T) {
	app := setupAppWithDeps(&handler.Dependencies{
		Boards: usecases.NewDepartureService(&mockSource{}, nil, 10),
		Cache:  failingCache{},
	})

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "not ready" {
		t.Errorf("expected not ready, got %q", body.Status)
	}
	if !strings.HasPrefix(body.Checks["cache"], "error:") {
		t.Errorf("expected a cache error, got %q", body.Checks["cache"])
	}
}

func TestReady_DisconnectedNATSBlocksReadiness(t *testing.T) {
	app := setupAppWithDeps(&handler.Dependencies{
		Boards: usecases.NewDepartureService(&mockSource{}, nil, 10),
		NATS:   downNATS{},
	})

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Checks["nats"] != "disconnected" {
		t.Errorf("expected nats disconnected, got %q", body.Checks["nats"])
	}
	if body.Checks["cache"] != "not configured" {
		t.Errorf("unexpected cache check: %q", body.Checks["cache"])
	}
}

// ---- Middleware ----

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(&mockSource{})

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected a request ID header")
	}
}
