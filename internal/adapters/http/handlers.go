package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mkoskinen/hslproxy/internal/core/domain"
)

// PingHandler answers the root path with the current UTC time. Kept as a
// trivial liveness probe for callers that predate /v1/health.
func PingHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"pong": time.Now().UTC()})
	}
}

// DeparturesHandler returns the next departures for the stops that match
// the given search string.
//
// GET /departures?stops=H3030&n=3
//
// stops may be a stop code or a string matched against stop names
// ("malm" matches "Malmin asema", "Malmin tori", ...). n is the total
// number of results, ordered by the real-time departure estimate.
func DeparturesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stops := c.Query("stops")
		if stops == "" {
			return errBadRequest(c, "stops query parameter is required")
		}
		if len(stops) > 200 {
			return errBadRequest(c, "stops query too long (max 200 characters)")
		}
		n := c.QueryInt("n", 5)

		log := LoggerFromCtx(c.UserContext())
		log.Debug("departure board requested", "stops", stops, "n", n)

		board, err := deps.Boards.Board(c.Context(), stops, n)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNoStops):
				return errNotFound(c, "no stops matching the query were found")
			case errors.Is(err, domain.ErrUpstream):
				log.Error("hsl api error", "stops", stops, "error", err)
				return errBadGateway(c, "request to the HSL API failed")
			case errors.Is(err, domain.ErrBadPayload):
				log.Error("hsl api payload error", "stops", stops, "error", err)
				return errInternal(c, "received a response from the HSL API but failed to parse it")
			default:
				log.Error("departure fetch failed", "stops", stops, "error", err)
				return errInternal(c, "unexpected error when fetching data from HSL")
			}
		}

		return c.JSON(board)
	}
}
