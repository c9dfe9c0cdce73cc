// Package geo maps a survey center and radius onto the rectangular lat/lon
// extent covered by a fusion grid.
package geo

import (
	"fmt"
	"math"
)

// metersPerDegreeLat is the mean length of one degree of latitude.
const metersPerDegreeLat = 111320.0

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate reports whether the coordinate is finite and inside the valid
// latitude/longitude ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Lat)
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Lon)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Lat, c.Lon)
}

// Bounds is a rectangular lat/lon extent.
type Bounds struct {
	North float64 `json:"north" yaml:"north"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	West  float64 `json:"west" yaml:"west"`
}

// BoundsFromRadius returns the box of half-width radiusMeters around center.
// Latitude is clamped to the poles and longitude to the antimeridian.
func BoundsFromRadius(center Coordinate, radiusMeters float64) (Bounds, error) {
	if err := center.Validate(); err != nil {
		return Bounds{}, err
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return Bounds{}, fmt.Errorf("radius must be positive, got %v", radiusMeters)
	}

	halfLat := radiusMeters / metersPerDegreeLat

	cosLat := math.Cos(center.Lat * math.Pi / 180.0)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}
	halfLon := radiusMeters / (metersPerDegreeLat * math.Abs(cosLat))

	return Bounds{
		North: clampLatitude(center.Lat + halfLat),
		South: clampLatitude(center.Lat - halfLat),
		East:  clampLongitude(center.Lon + halfLon),
		West:  clampLongitude(center.Lon - halfLon),
	}, nil
}

// CellCenter returns the center of cell (row, col) in a rows x cols grid laid
// over b. Row 0 is the northern edge and column 0 the western edge.
func (b Bounds) CellCenter(row, col, rows, cols int) Coordinate {
	if rows <= 0 || cols <= 0 {
		return Coordinate{}
	}
	latStep := (b.North - b.South) / float64(rows)
	lonStep := (b.East - b.West) / float64(cols)
	return Coordinate{
		Lat: b.North - (float64(row)+0.5)*latStep,
		Lon: b.West + (float64(col)+0.5)*lonStep,
	}
}

// Contains reports whether c lies inside b (edges included).
func (b Bounds) Contains(c Coordinate) bool {
	return c.Lat <= b.North && c.Lat >= b.South && c.Lon >= b.West && c.Lon <= b.East
}

func clampLatitude(v float64) float64 {
	return math.Max(-90, math.Min(90, v))
}

func clampLongitude(v float64) float64 {
	return math.Max(-180, math.Min(180, v))
}
