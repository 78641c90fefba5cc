package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// CSVHeader is the column order written by WritePairsCSV.
var CSVHeader = []string{"id_a", "id_b", "area_m2", "centroid_lon", "centroid_lat", "geometry_wkt"}

// WritePairsCSV writes one row per overlap pair.
func WritePairsCSV(w io.Writer, res *domain.ScanResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	if res != nil {
		for _, p := range res.Pairs {
			row := []string{
				p.IDA,
				p.IDB,
				strconv.FormatFloat(p.AreaSquareMeters, 'f', 2, 64),
				strconv.FormatFloat(p.Centroid.Lon, 'f', 7, 64),
				strconv.FormatFloat(p.Centroid.Lat, 'f', 7, 64),
				GeometryWKT(p.Geometry),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
