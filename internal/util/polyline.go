package util

import (
	"math"
	"strings"
)

// PolylinePrecision is the Google Maps standard of five decimal places
const PolylinePrecision = 1e-5

// EncodePolyline encodes [lat, lng] pairs with the Encoded Polyline Algorithm
func EncodePolyline(points [][2]float64) string {
	return EncodePolylineWithPrecision(points, PolylinePrecision)
}

func EncodePolylineWithPrecision(points [][2]float64, precision float64) string {
	var sb strings.Builder
	prevLat, prevLng := 0, 0

	for _, p := range points {
		lat := int(math.Round(p[0] / precision))
		lng := int(math.Round(p[1] / precision))

		writeVarint(&sb, lat-prevLat)
		writeVarint(&sb, lng-prevLng)

		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func writeVarint(sb *strings.Builder, v int) {
	// zig-zag: sign goes into the low bit
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}

// DecodePolyline converts an encoded polyline string to a slice of lat/lng coordinates
func DecodePolyline(encoded string) [][2]float64 {
	return DecodePolylineWithPrecision(encoded, PolylinePrecision)
}

// DecodePolylineWithPrecision decodes a polyline with a custom precision factor.
// A truncated trailing pair is dropped.
func DecodePolylineWithPrecision(encoded string, precision float64) [][2]float64 {
	var points [][2]float64
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		dLat, next, ok := readVarint(encoded, index)
		if !ok {
			return points
		}
		dLng, next, ok := readVarint(encoded, next)
		if !ok {
			return points
		}
		index = next

		lat += dLat
		lng += dLng

		// Google standard order: [latitude, longitude]
		points = append(points, [2]float64{float64(lat) * precision, float64(lng) * precision})
	}

	return points
}

func readVarint(encoded string, index int) (int, int, bool) {
	shift, result := 0, 0
	for {
		if index >= len(encoded) {
			return 0, index, false
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), index, true
	}
	return result >> 1, index, true
}
