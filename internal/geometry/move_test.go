package geometry

import (
	"math"
	"testing"

	"assettracker/internal/model"
)

func TestMoveToward(t *testing.T) {
	start := model.Coordinates{Lat: 0, Lng: 0}
	end := model.Coordinates{Lat: 0, Lng: 1}
	leg := Distance(start, end)

	tests := []struct {
		name     string
		distance float64
		want     float64 // meters from start
	}{
		{"zero", 0, 0},
		{"negative", -5, 0},
		{"quarter", leg / 4, leg / 4},
		{"past end", leg * 2, leg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MoveToward(start, end, tt.distance)
			if d := Distance(start, got); math.Abs(d-tt.want) > 1e-3 {
				t.Errorf("moved %v m, want %v", d, tt.want)
			}
			if math.Abs(got.Lat) > 1e-9 {
				t.Errorf("left the equator: %+v", got)
			}
		})
	}
}
