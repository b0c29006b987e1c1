package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema creates the GraphQL schema wired to the departure service.
// The proxy already speaks GraphQL toward Digitransit, so re-exposing the
// flattened board the same way costs little and spares clients the REST
// envelope.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	departureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Departure",
		Fields: graphql.Fields{
			"stop":        &graphql.Field{Type: graphql.String},
			"line":        &graphql.Field{Type: graphql.String},
			"destination": &graphql.Field{Type: graphql.String},
			"scheduled":   &graphql.Field{Type: graphql.String},
			"estimated":   &graphql.Field{Type: graphql.String},
		},
	})

	boardType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DepartureBoard",
		Fields: graphql.Fields{
			"departures": &graphql.Field{Type: graphql.NewList(departureType)},
			"timestamp":  &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"departures": &graphql.Field{
				Type:        boardType,
				Description: "Next departures for the stops matching a code or name fragment",
				Args: graphql.FieldConfigArgument{
					"stops": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"n":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 5},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stops := p.Args["stops"].(string)
					n := p.Args["n"].(int)

					board, err := deps.Boards.Board(p.Context, stops, n)
					if err != nil {
						return nil, err
					}

					departures := make([]map[string]interface{}, 0, len(board.Departures))
					for _, d := range board.Departures {
						departures = append(departures, map[string]interface{}{
							"stop":        d.Stop,
							"line":        d.Line,
							"destination": d.Destination,
							"scheduled":   d.Scheduled.Format(time.RFC3339),
							"estimated":   d.Estimated.Format(time.RFC3339),
						})
					}
					return map[string]interface{}{
						"departures": departures,
						"timestamp":  board.Timestamp.Format(time.RFC3339),
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
