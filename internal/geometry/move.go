package geometry

import (
	"github.com/golang/geo/s2"

	"assettracker/internal/model"
)

// MoveToward walks distanceMeters from start along the great circle to end.
// It returns end once the distance covers the whole leg.
func MoveToward(start, end model.Coordinates, distanceMeters float64) model.Coordinates {
	if distanceMeters <= 0 {
		return start
	}
	total := Distance(start, end)
	if distanceMeters >= total {
		return end
	}

	a := s2.PointFromLatLng(s2.LatLngFromDegrees(start.Lat, start.Lng))
	b := s2.PointFromLatLng(s2.LatLngFromDegrees(end.Lat, end.Lng))
	ll := s2.LatLngFromPoint(s2.Interpolate(distanceMeters/total, a, b))
	return model.Coordinates{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
}
