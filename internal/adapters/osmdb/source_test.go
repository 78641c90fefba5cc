package osmdb

import (
	"database/sql"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	q := Query("planet_osm_polygon", 3857)
	assert.Contains(t, q, `FROM "planet_osm_polygon"`)
	assert.Contains(t, q, "ST_MakeEnvelope($1, $2, $3, $4, 4326), 3857)")
	assert.Contains(t, q, "LIMIT $5")

	assert.Contains(t, Query(`x"; DROP TABLE y; --`, 0), `FROM "x""; DROP TABLE y; --"`)
	assert.Contains(t, Query("t", 0), "4326), 3857)")
}

func TestRow_Footprint(t *testing.T) {
	poly := orb.Polygon{{{8, 48}, {8.001, 48}, {8.001, 48.001}, {8, 48}}}
	geom, err := wkb.Marshal(poly)
	require.NoError(t, err)

	fp := row{
		OSMID:    -77,
		Building: sql.NullString{String: "church", Valid: true},
		Geom:     geom,
	}.footprint()

	assert.Equal(t, "relation/77", fp.ID)
	assert.Equal(t, map[string]string{"building": "church"}, fp.Attributes)
	assert.Equal(t, poly, fp.Geometry)

	fp = row{OSMID: 12, Geom: []byte{0x01}}.footprint()
	assert.Equal(t, "way/12", fp.ID)
	assert.Nil(t, fp.Geometry)
	assert.Empty(t, fp.Attributes)
}
