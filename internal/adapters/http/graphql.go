package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/export"
)

// buildSchema creates the read-only GraphQL schema over stored scan runs.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	bboxType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BoundingBox",
		Fields: graphql.Fields{
			"west":  &graphql.Field{Type: graphql.Float},
			"south": &graphql.Field{Type: graphql.Float},
			"east":  &graphql.Field{Type: graphql.Float},
			"north": &graphql.Field{Type: graphql.Float},
		},
	})

	pairType := graphql.NewObject(graphql.ObjectConfig{
		Name: "OverlapPair",
		Fields: graphql.Fields{
			"id_a":     &graphql.Field{Type: graphql.String},
			"id_b":     &graphql.Field{Type: graphql.String},
			"area_m2":  &graphql.Field{Type: graphql.Float},
			"centroid": &graphql.Field{Type: geoPointType},
			"wkt":      &graphql.Field{Type: graphql.String, Description: "Overlap geometry as WKT"},
		},
	})

	issueType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeometryIssue",
		Fields: graphql.Fields{
			"footprint_id": &graphql.Field{Type: graphql.String},
			"reason":       &graphql.Field{Type: graphql.String},
		},
	})

	summaryFields := graphql.Fields{
		"id":                  &graphql.Field{Type: graphql.ID},
		"bbox":                &graphql.Field{Type: bboxType},
		"task_id":             &graphql.Field{Type: graphql.Int},
		"source":              &graphql.Field{Type: graphql.String},
		"started_at":          &graphql.Field{Type: graphql.String},
		"duration_ms":         &graphql.Field{Type: graphql.Int},
		"pair_count":          &graphql.Field{Type: graphql.Int},
		"footprints_examined": &graphql.Field{Type: graphql.Int},
		"truncated":           &graphql.Field{Type: graphql.Boolean},
		"geometry_errors":     &graphql.Field{Type: graphql.Int},
	}

	scanSummaryType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "ScanSummary",
		Fields: summaryFields,
	})

	scanFields := graphql.Fields{
		"center":             &graphql.Field{Type: geoPointType},
		"footprints_fetched": &graphql.Field{Type: graphql.Int},
		"pairs_examined":     &graphql.Field{Type: graphql.Int},
		"min_overlap_area":   &graphql.Field{Type: graphql.Float},
		"max_pairs":          &graphql.Field{Type: graphql.Int},
		"max_comparisons":    &graphql.Field{Type: graphql.Int},
		"issues":             &graphql.Field{Type: graphql.NewList(issueType)},
		"pairs": &graphql.Field{
			Type: graphql.NewList(pairType),
			Args: graphql.FieldConfigArgument{
				"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				src, _ := p.Source.(map[string]interface{})
				pairs, _ := src["pairs"].([]map[string]interface{})
				if limit, ok := p.Args["limit"].(int); ok && limit >= 0 && limit < len(pairs) {
					pairs = pairs[:limit]
				}
				return pairs, nil
			},
		},
	}
	for name, f := range summaryFields {
		scanFields[name] = f
	}
	scanType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Scan",
		Fields: scanFields,
	})

	scansPageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ScanPage",
		Fields: graphql.Fields{
			"total": &graphql.Field{Type: graphql.Int},
			"items": &graphql.Field{Type: graphql.NewList(scanSummaryType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"scan": &graphql.Field{
				Type:        scanType,
				Description: "Get a stored scan run by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := uuid.Parse(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					run, err := deps.Scans.Get(p.Context, id)
					if err != nil {
						return nil, err
					}
					return scanToMap(run), nil
				},
			},
			"scans": &graphql.Field{
				Type:        scansPageType,
				Description: "List scan runs, newest first",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPageLimit},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					runs, total, err := deps.Scans.List(p.Context, offset, limit)
					if err != nil {
						return nil, err
					}
					items := make([]map[string]interface{}, 0, len(runs))
					for _, r := range runs {
						items = append(items, summaryToMap(r))
					}
					return map[string]interface{}{"total": total, "items": items}, nil
				},
			},
			"sources": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Registered footprint sources",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Scans.Sources(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func summaryToMap(s domain.ScanRunSummary) map[string]interface{} {
	m := map[string]interface{}{
		"id":                  s.ID.String(),
		"bbox":                s.BBox,
		"source":              s.Source,
		"started_at":          s.StartedAt.Format(time.RFC3339),
		"duration_ms":         int(s.DurationMillis),
		"pair_count":          s.PairCount,
		"footprints_examined": s.FootprintsExamined,
		"truncated":           s.Truncated,
		"geometry_errors":     s.GeometryErrors,
	}
	if s.TaskID != nil {
		m["task_id"] = *s.TaskID
	}
	return m
}

func scanToMap(run *domain.ScanRun) map[string]interface{} {
	m := summaryToMap(run.Summary())
	m["center"] = run.Center
	m["footprints_fetched"] = run.FootprintsFetched
	m["pairs_examined"] = run.Result.PairsExamined
	m["min_overlap_area"] = run.Options.MinOverlapAreaSquareMeters
	m["max_pairs"] = run.Options.MaxPairs
	m["max_comparisons"] = run.Options.MaxComparisons
	m["issues"] = run.Result.Issues

	pairs := make([]map[string]interface{}, 0, len(run.Result.Pairs))
	for _, p := range run.Result.Pairs {
		pairs = append(pairs, map[string]interface{}{
			"id_a":     p.IDA,
			"id_b":     p.IDB,
			"area_m2":  p.AreaSquareMeters,
			"centroid": p.Centroid,
			"wkt":      export.GeometryWKT(p.Geometry),
		})
	}
	m["pairs"] = pairs
	return m
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
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
