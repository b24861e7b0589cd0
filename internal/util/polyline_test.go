package util

import (
	"math"
	"testing"
)

func TestEncodePolyline(t *testing.T) {
	// reference example from the algorithm's documentation
	points := [][2]float64{{38.5, -120.2}, {40.7, -120.95}, {43.252, -126.453}}
	want := "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

	if got := EncodePolyline(points); got != want {
		t.Fatalf("EncodePolyline = %q, want %q", got, want)
	}
}

func TestPolylineRoundTrip(t *testing.T) {
	points := [][2]float64{{47.60621, -122.33207}, {47.60001, -122.3}, {-33.86882, 151.20929}, {0, 0}}
	got := DecodePolyline(EncodePolyline(points))
	if len(got) != len(points) {
		t.Fatalf("decoded %d points, want %d", len(got), len(points))
	}
	for i := range points {
		for j := 0; j < 2; j++ {
			if math.Abs(got[i][j]-points[i][j]) > 1e-9 {
				t.Errorf("point %d = %v, want %v", i, got[i], points[i])
			}
		}
	}
}

func TestDecodePolylineTruncated(t *testing.T) {
	if got := DecodePolyline("_p~iF"); len(got) != 0 {
		t.Errorf("decoded %v from a half pair", got)
	}
	if got := DecodePolyline(""); len(got) != 0 {
		t.Errorf("decoded %v from empty string", got)
	}
}
