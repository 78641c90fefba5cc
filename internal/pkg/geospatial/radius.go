package geospatial

import "math"

const metersPerDegree = 111320.0

// BoundingBox returns the box around a point with the given radius in meters, clamped to
// WGS84 limits. The result is in west, south, east, north order.
func BoundingBox(lat, lon, radiusMeters float64) (west, south, east, north float64) {
	latDelta := radiusMeters / metersPerDegree
	lonDelta := radiusMeters / (metersPerDegree * math.Cos(toRad(lat)))

	west = math.Max(lon-lonDelta, -180)
	east = math.Min(lon+lonDelta, 180)
	south = math.Max(lat-latDelta, -90)
	north = math.Min(lat+latDelta, 90)
	return west, south, east, north
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
