package domain

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lng)
}

// DistanceMeters returns the great-circle distance using the haversine formula.
func DistanceMeters(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

type ZoneShape string

const (
	ZoneCircle  ZoneShape = "circle"
	ZonePolygon ZoneShape = "polygon"
)

// GeofenceZone is an authorized area for one entity. Circle zones use
// Center and RadiusMeters, polygon zones use Vertices.
type GeofenceZone struct {
	EntityID string       `json:"entity_id"`
	Label    string       `json:"label"`
	Shape    ZoneShape    `json:"shape"`
	Center   Coordinate   `json:"center"`
	Radius   float64      `json:"radius_m"`
	Vertices []Coordinate `json:"vertices,omitempty"`
}

func (z GeofenceZone) Validate() error {
	switch z.Shape {
	case ZoneCircle:
		if !z.Center.Valid() || z.Radius <= 0 {
			return fmt.Errorf("%w: circle zone %q needs a valid center and positive radius", ErrInvalidZone, z.Label)
		}
	case ZonePolygon:
		if len(z.Vertices) < 3 {
			return fmt.Errorf("%w: polygon zone %q needs at least 3 vertices", ErrInvalidZone, z.Label)
		}
		for _, v := range z.Vertices {
			if !v.Valid() {
				return fmt.Errorf("%w: polygon zone %q has vertex %s out of range", ErrInvalidZone, z.Label, v)
			}
		}
	default:
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidZone, z.Shape)
	}
	return nil
}

// Contains reports whether c lies inside the zone. Circle boundaries count
// as inside.
func (z GeofenceZone) Contains(c Coordinate) bool {
	switch z.Shape {
	case ZoneCircle:
		return DistanceMeters(z.Center, c) <= z.Radius
	case ZonePolygon:
		return pointInPolygon(c, z.Vertices)
	}
	return false
}

// pointInPolygon is the even-odd ray casting test on lat/lng treated as a
// plane. Zones are small enough that curvature does not matter.
func pointInPolygon(p Coordinate, poly []Coordinate) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			x := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
