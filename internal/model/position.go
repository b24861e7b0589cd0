package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside their ranges.
// Values outside the ranges are never clamped.
func (c Coordinates) Valid() bool {
	return ValidLatitude(c.Lat) && ValidLongitude(c.Lng)
}

// Point returns the coordinates in GeoJSON order [lng, lat]
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

func ValidLatitude(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -90 && v <= 90
}

func ValidLongitude(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -180 && v <= 180
}

// Accuracy is the horizontal uncertainty radius of a fix.
// The zero value means "unknown", which is different from a known 0 m.
type Accuracy struct {
	Meters float64
	Known  bool
}

// UnknownAccuracy marks a fix whose uncertainty was not reported
var UnknownAccuracy = Accuracy{}

func KnownAccuracy(meters float64) Accuracy {
	return Accuracy{Meters: meters, Known: true}
}

type accuracyJSON struct {
	Horizontal float64 `json:"horizontal"`
}

// MarshalJSON renders {"horizontal": m}, or null when unknown.
func (a Accuracy) MarshalJSON() ([]byte, error) {
	if !a.Known {
		return []byte("null"), nil
	}
	return json.Marshal(accuracyJSON{Horizontal: a.Meters})
}

func (a *Accuracy) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = UnknownAccuracy
		return nil
	}
	var v accuracyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = KnownAccuracy(v.Horizontal)
	return nil
}

// Metadata holds scalar device properties (battery level, temperature, ...).
// Keys the pipeline does not know about are kept as-is.
type Metadata map[string]any

// Clone returns an independent copy; nil stays nil
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// PositionUpdate is the canonical, validated location record carried through the hub.
// It is a value type; Metadata must be treated as read-only once the update is built.
type PositionUpdate struct {
	DeviceID string `json:"deviceId"`
	Coordinates
	SampleTime time.Time `json:"sampleTime"`
	Accuracy   Accuracy  `json:"accuracy"`
	Metadata   Metadata  `json:"metadata,omitempty"`
}

// NewPositionUpdate builds an update that owns a private copy of meta
func NewPositionUpdate(deviceID string, coords Coordinates, sampleTime time.Time, acc Accuracy, meta Metadata) PositionUpdate {
	return PositionUpdate{
		DeviceID:    deviceID,
		Coordinates: coords,
		SampleTime:  sampleTime,
		Accuracy:    acc,
		Metadata:    meta.Clone(),
	}
}

// NewerThan reports whether u was measured strictly after other.
// Equal sample times are not newer.
func (u PositionUpdate) NewerThan(other PositionUpdate) bool {
	return u.SampleTime.After(other.SampleTime)
}
