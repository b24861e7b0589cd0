package geometry

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"

	"assettracker/internal/model"
)

const (
	degToRad = math.Pi / 180
	halfPi   = math.Pi / 2
)

// Distance returns the great-circle distance in meters
func Distance(a, b model.Coordinates) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lng)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return la.Distance(lb).Radians() * EarthRadiusMeters
}

// PointDistance is Distance for orb points ([lng, lat])
func PointDistance(a, b orb.Point) float64 {
	return Distance(model.Coordinates{Lat: a.Lat(), Lng: a.Lon()}, model.Coordinates{Lat: b.Lat(), Lng: b.Lon()})
}

// BoundAround returns a lat/lng box that contains every point within
// radiusMeters of center. The box is clipped at the poles and the antimeridian.
func BoundAround(center model.Coordinates, radiusMeters float64) orb.Bound {
	ring, err := CirclePolygon(center, radiusMeters, DefaultSegments)
	if err != nil || radiusMeters == 0 {
		p := center.Point()
		return orb.Bound{Min: p, Max: p}
	}
	b := ring.Bound()

	// The circle encloses a pole when its angular radius exceeds the colatitude
	d := radiusMeters / EarthRadiusMeters
	if center.Lat*degToRad+d >= halfPi {
		b.Max[1] = 90
		b.Min[0], b.Max[0] = -180, 180
	}
	if center.Lat*degToRad-d <= -halfPi {
		b.Min[1] = -90
		b.Min[0], b.Max[0] = -180, 180
	}
	// A ring crossing the antimeridian shows up as a box wider than the circle can be
	if b.Max[0]-b.Min[0] > 180 {
		b.Min[0], b.Max[0] = -180, 180
	}
	return b
}
