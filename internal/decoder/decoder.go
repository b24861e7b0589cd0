// Package decoder normalizes device telemetry into canonical position updates.
//
// Decoding is a pure transform: nothing is published or stored here. Required
// geospatial fields are never defaulted; a message that lacks them or carries
// out-of-range values is rejected with a DecodeError naming the field.
package decoder

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"assettracker/internal/model"
)

// Canonical field names used in errors
const (
	FieldDeviceID   = "deviceId"
	FieldLatitude   = "latitude"
	FieldLongitude  = "longitude"
	FieldPosition   = "position"
	FieldSampleTime = "sampleTime"
	FieldAccuracy   = "accuracy"
	FieldMetadata   = "metadata"
	FieldPayload    = "payload"
)

// Accepted spellings for each field, first match wins
var (
	deviceIDKeys   = []string{"deviceId", "device_id", "DeviceId"}
	latitudeKeys   = []string{"latitude", "lat"}
	longitudeKeys  = []string{"longitude", "lng", "lon"}
	positionKeys   = []string{"position", "coordinates"}
	sampleTimeKeys = []string{"sampleTime", "sample_time", "timestamp"}
	accuracyKeys   = []string{"accuracy", "accuracyMeters", "accuracy_meters"}
	metadataKeys   = []string{"metadata", "positionProperties", "properties"}
)

// MaxClockSkew is how far ahead of the local clock a sample time may be.
const MaxClockSkew = 24 * time.Hour

// maxEpochMillis is the last millisecond representable as int64 nanoseconds
const maxEpochMillis = float64(math.MaxInt64 / int64(time.Millisecond))

var now = time.Now

var knownKeys = func() map[string]bool {
	m := map[string]bool{}
	for _, group := range [][]string{deviceIDKeys, latitudeKeys, longitudeKeys, positionKeys, sampleTimeKeys, accuracyKeys, metadataKeys} {
		for _, k := range group {
			m[k] = true
		}
	}
	return m
}()

// DecodeJSON parses a JSON object and decodes it
func DecodeJSON(data []byte) (model.PositionUpdate, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return model.PositionUpdate{}, invalid(FieldPayload, "not a JSON object: %v", err)
	}
	if raw == nil {
		return model.PositionUpdate{}, invalid(FieldPayload, "null payload")
	}
	return Decode(raw)
}

// Decode validates a semi-structured payload and builds a PositionUpdate
func Decode(raw map[string]any) (model.PositionUpdate, error) {
	if raw == nil {
		return model.PositionUpdate{}, invalid(FieldPayload, "null payload")
	}

	deviceID, err := decodeDeviceID(raw)
	if err != nil {
		return model.PositionUpdate{}, err
	}

	coords, err := decodeCoordinates(raw)
	if err != nil {
		return model.PositionUpdate{}, err
	}

	sampleTime, err := decodeSampleTime(raw)
	if err != nil {
		return model.PositionUpdate{}, err
	}

	acc, err := decodeAccuracy(raw)
	if err != nil {
		return model.PositionUpdate{}, err
	}

	meta, err := decodeMetadata(raw)
	if err != nil {
		return model.PositionUpdate{}, err
	}

	return model.PositionUpdate{
		DeviceID:    deviceID,
		Coordinates: coords,
		SampleTime:  sampleTime,
		Accuracy:    acc,
		Metadata:    meta,
	}, nil
}

func lookup(raw map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func decodeDeviceID(raw map[string]any) (string, error) {
	v, ok := lookup(raw, deviceIDKeys)
	if !ok || v == nil {
		return "", missing(FieldDeviceID)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(FieldDeviceID, "expected string, got %T", v)
	}
	if strings.TrimSpace(s) == "" {
		return "", invalid(FieldDeviceID, "empty")
	}
	return s, nil
}

func decodeCoordinates(raw map[string]any) (model.Coordinates, error) {
	latRaw, hasLat := lookup(raw, latitudeKeys)
	lngRaw, hasLng := lookup(raw, longitudeKeys)

	if !hasLat && !hasLng {
		if pos, ok := lookup(raw, positionKeys); ok && pos != nil {
			return decodePositionArray(pos)
		}
		return model.Coordinates{}, missing(FieldLatitude)
	}
	if !hasLat || latRaw == nil {
		return model.Coordinates{}, missing(FieldLatitude)
	}
	if !hasLng || lngRaw == nil {
		return model.Coordinates{}, missing(FieldLongitude)
	}

	lat, err := toFloat(FieldLatitude, latRaw)
	if err != nil {
		return model.Coordinates{}, err
	}
	lng, err := toFloat(FieldLongitude, lngRaw)
	if err != nil {
		return model.Coordinates{}, err
	}
	return checkRanges(lat, lng)
}

// decodePositionArray reads a GeoJSON style [lng, lat] pair
func decodePositionArray(v any) (model.Coordinates, error) {
	arr, ok := v.([]any)
	if !ok {
		return model.Coordinates{}, invalid(FieldPosition, "expected [longitude, latitude], got %T", v)
	}
	if len(arr) < 2 {
		return model.Coordinates{}, invalid(FieldPosition, "expected 2 elements, got %d", len(arr))
	}
	lng, err := toFloat(FieldLongitude, arr[0])
	if err != nil {
		return model.Coordinates{}, err
	}
	lat, err := toFloat(FieldLatitude, arr[1])
	if err != nil {
		return model.Coordinates{}, err
	}
	return checkRanges(lat, lng)
}

func checkRanges(lat, lng float64) (model.Coordinates, error) {
	if !model.ValidLatitude(lat) {
		return model.Coordinates{}, invalid(FieldLatitude, "%v outside [-90, 90]", lat)
	}
	if !model.ValidLongitude(lng) {
		return model.Coordinates{}, invalid(FieldLongitude, "%v outside [-180, 180]", lng)
	}
	return model.Coordinates{Lat: lat, Lng: lng}, nil
}

func decodeSampleTime(raw map[string]any) (time.Time, error) {
	v, ok := lookup(raw, sampleTimeKeys)
	if !ok || v == nil {
		return time.Time{}, missing(FieldSampleTime)
	}

	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return checkNotFuture(t.UTC())
		}
		// numeric strings are epoch milliseconds
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return time.Time{}, invalid(FieldSampleTime, "unrecognized time %q", s)
		}
	}

	ms, err := toFloat(FieldSampleTime, v)
	if err != nil {
		return time.Time{}, err
	}
	if ms <= 0 {
		return time.Time{}, invalid(FieldSampleTime, "epoch milliseconds must be positive, got %v", ms)
	}
	if ms > maxEpochMillis || math.IsInf(ms, 0) || math.IsNaN(ms) {
		return time.Time{}, invalid(FieldSampleTime, "epoch milliseconds out of range: %v", ms)
	}
	sec, frac := math.Modf(ms / 1000)
	return checkNotFuture(time.Unix(int64(sec), int64(frac*1e9)).UTC())
}

func checkNotFuture(t time.Time) (time.Time, error) {
	if limit := now().Add(MaxClockSkew); t.After(limit) {
		return time.Time{}, invalid(FieldSampleTime, "%s is more than %s ahead of the clock", t.Format(time.RFC3339), MaxClockSkew)
	}
	return t, nil
}

func decodeAccuracy(raw map[string]any) (model.Accuracy, error) {
	v, ok := lookup(raw, accuracyKeys)
	if !ok || v == nil {
		return model.UnknownAccuracy, nil
	}

	if obj, ok := v.(map[string]any); ok {
		h, ok := obj["horizontal"]
		if !ok || h == nil {
			return model.UnknownAccuracy, nil
		}
		v = h
	}

	m, err := toFloat(FieldAccuracy, v)
	if err != nil {
		return model.Accuracy{}, err
	}
	if m < 0 {
		return model.Accuracy{}, invalid(FieldAccuracy, "negative radius %v", m)
	}
	return model.KnownAccuracy(m), nil
}

func decodeMetadata(raw map[string]any) (model.Metadata, error) {
	var meta model.Metadata

	if v, ok := lookup(raw, metadataKeys); ok && v != nil {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, invalid(FieldMetadata, "expected object, got %T", v)
		}
		meta = make(model.Metadata, len(obj))
		for k, val := range obj {
			scalar, ok := toScalar(val)
			if !ok {
				return nil, invalid(FieldMetadata+"."+k, "expected scalar, got %T", val)
			}
			meta[k] = scalar
		}
	}

	// Unknown top level scalars ride along as metadata
	for k, val := range raw {
		if knownKeys[k] {
			continue
		}
		scalar, ok := toScalar(val)
		if !ok {
			continue
		}
		if meta == nil {
			meta = model.Metadata{}
		}
		if _, exists := meta[k]; !exists {
			meta[k] = scalar
		}
	}
	return meta, nil
}

func toScalar(v any) (any, bool) {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x, true
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return x.String(), true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return nil, false
}

func toFloat(field string, v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, invalid(field, "not a number: %q", x.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, invalid(field, "not a number: %q", x)
		}
		f = parsed
	default:
		return 0, invalid(field, "expected number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(field, "not finite")
	}
	return f, nil
}
