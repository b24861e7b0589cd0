// Package geometry builds geodesic shapes on a spherical earth model.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"assettracker/internal/model"
)

const (
	// EarthRadiusMeters is the mean earth radius (IUGG)
	EarthRadiusMeters = 6371008.8

	// DefaultSegments matches the resolution the map frontend has always drawn with
	DefaultSegments = 64

	MinSegments = 3
)

var ErrInvalidArgument = errors.New("invalid geometry argument")

// CirclePolygon approximates the set of points at radiusMeters great-circle
// distance from center. The ring has segments+1 points: bearings are spaced
// evenly starting at north and going clockwise, and the first point is
// repeated at the end to close it.
func CirclePolygon(center model.Coordinates, radiusMeters float64, segments int) (orb.Ring, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("%w: center %v,%v", ErrInvalidArgument, center.Lat, center.Lng)
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters < 0 {
		return nil, fmt.Errorf("%w: radius %v", ErrInvalidArgument, radiusMeters)
	}
	if segments < MinSegments {
		return nil, fmt.Errorf("%w: %d segments, need at least %d", ErrInvalidArgument, segments, MinSegments)
	}

	ring := make(orb.Ring, segments+1)

	if radiusMeters == 0 {
		p := center.Point()
		for i := range ring {
			ring[i] = p
		}
		return ring, nil
	}

	ll := s2.LatLngFromDegrees(center.Lat, center.Lng)
	origin := s2.PointFromLatLng(ll).Vector
	north, east := tangentFrame(ll)

	d := radiusMeters / EarthRadiusMeters
	sinD, cosD := math.Sincos(d)

	for i := 0; i < segments; i++ {
		bearing := 2 * math.Pi * float64(i) / float64(segments)
		sinB, cosB := math.Sincos(bearing)

		dir := north.Mul(cosB).Add(east.Mul(sinB))
		v := origin.Mul(cosD).Add(dir.Mul(sinD)).Normalize()

		dest := s2.LatLngFromPoint(s2.Point{Vector: v})
		ring[i] = orb.Point{dest.Lng.Degrees(), dest.Lat.Degrees()}
	}
	ring[segments] = ring[0]

	return ring, nil
}

// tangentFrame returns unit vectors pointing north and east at ll.
// At the poles "north" follows the meridian of ll.Lng.
func tangentFrame(ll s2.LatLng) (north, east r3.Vector) {
	sinLat, cosLat := math.Sincos(ll.Lat.Radians())
	sinLng, cosLng := math.Sincos(ll.Lng.Radians())

	north = r3.Vector{X: -sinLat * cosLng, Y: -sinLat * sinLng, Z: cosLat}
	east = r3.Vector{X: -sinLng, Y: cosLng, Z: 0}
	return north, east
}

// CircleFeature wraps the accuracy circle in a GeoJSON polygon feature
func CircleFeature(center model.Coordinates, radiusMeters float64, segments int, props map[string]any) (*geojson.Feature, error) {
	ring, err := CirclePolygon(center, radiusMeters, segments)
	if err != nil {
		return nil, err
	}

	f := geojson.NewFeature(orb.Polygon{ring})
	for k, v := range props {
		f.Properties[k] = v
	}
	f.Properties["radiusMeters"] = radiusMeters
	return f, nil
}
