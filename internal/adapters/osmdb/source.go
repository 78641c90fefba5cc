// Package osmdb reads building polygons from an osm2pgsql database.
package osmdb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// Name is the source name used in requests and metrics.
const Name = "osmdb"

type Source struct {
	db          *sqlx.DB
	query       string
	maxFeatures int
}

type row struct {
	OSMID       int64          `db:"osm_id"`
	Building    sql.NullString `db:"building"`
	Name        sql.NullString `db:"name"`
	HouseNumber sql.NullString `db:"housenumber"`
	Geom        []byte         `db:"geom"`
}

// New connects to dsn. table is an osm2pgsql polygon table whose geometry column
// "way" is stored in srid.
func New(ctx context.Context, dsn, table string, srid, maxFeatures int) (*Source, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect osm database: %w", err)
	}
	return &Source{db: db, query: Query(table, srid), maxFeatures: maxFeatures}, nil
}

func (s *Source) Name() string { return Name }

// Query returns the parameterised select for table. Parameters are west, south,
// east, north and limit (NULL for none).
func Query(table string, srid int) string {
	if srid <= 0 {
		srid = 3857
	}
	return fmt.Sprintf(`SELECT osm_id, building, name, "addr:housenumber" AS housenumber,
       ST_AsBinary(ST_Transform(way, 4326)) AS geom
FROM %s
WHERE building IS NOT NULL
  AND way && ST_Transform(ST_MakeEnvelope($1, $2, $3, $4, 4326), %d)
ORDER BY osm_id
LIMIT $5`, pq.QuoteIdentifier(table), srid)
}

func (s *Source) Footprints(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error) {
	if limit <= 0 || (s.maxFeatures > 0 && limit > s.maxFeatures) {
		limit = s.maxFeatures
	}
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.query, bbox.West, bbox.South, bbox.East, bbox.North, lim); err != nil {
		return nil, fmt.Errorf("query buildings: %w", err)
	}

	footprints := make([]domain.Footprint, 0, len(rows))
	for _, r := range rows {
		footprints = append(footprints, r.footprint())
	}
	return footprints, nil
}

// footprint converts r. osm2pgsql stores relations with negated ids. Undecodable
// geometry is left nil so the scanner reports it per footprint.
func (r row) footprint() domain.Footprint {
	id := "way/" + strconv.FormatInt(r.OSMID, 10)
	if r.OSMID < 0 {
		id = "relation/" + strconv.FormatInt(-r.OSMID, 10)
	}

	attrs := map[string]string{}
	for k, v := range map[string]sql.NullString{
		"building":         r.Building,
		"name":             r.Name,
		"addr:housenumber": r.HouseNumber,
	} {
		if v.Valid {
			attrs[k] = v.String
		}
	}

	fp := domain.Footprint{ID: id, Attributes: attrs}
	if g, err := wkb.Unmarshal(r.Geom); err == nil {
		fp.Geometry = g
	}
	return fp
}

func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}
