// Package simulator drives virtual trackers along fixed routes and feeds
// their fixes through the normal ingest path.
package simulator

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"assettracker/internal/model"
	"assettracker/internal/util"
)

// Scenario is the YAML document listing simulated devices
type Scenario struct {
	Devices []DeviceSpec `yaml:"devices" validate:"required,min=1,dive"`
}

// DeviceSpec describes one simulated tracker. The route is either an encoded
// polyline or a list of [lat, lng] waypoints.
type DeviceSpec struct {
	ID             string       `yaml:"id" validate:"required"`
	Route          string       `yaml:"route" validate:"required_without=Waypoints"`
	Waypoints      [][2]float64 `yaml:"waypoints"`
	SpeedMps       float64      `yaml:"speedMps" validate:"gt=0"`
	AccuracyMeters *float64     `yaml:"accuracyMeters" validate:"omitempty,gte=0"`
	Battery        float64      `yaml:"battery" validate:"gte=0,lte=100"`
	DrainPerHour   float64      `yaml:"drainPerHour" validate:"gte=0"`
	Loop           bool         `yaml:"loop"`
}

// LoadScenario reads and validates a scenario file
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario: %w", err)
	}

	seen := make(map[string]bool, len(s.Devices))
	for _, d := range s.Devices {
		if seen[d.ID] {
			return Scenario{}, fmt.Errorf("invalid scenario: duplicate device %q", d.ID)
		}
		seen[d.ID] = true
		if _, err := d.Points(); err != nil {
			return Scenario{}, fmt.Errorf("invalid scenario: device %q: %w", d.ID, err)
		}
	}
	return s, nil
}

// Points resolves the route to coordinates
func (d DeviceSpec) Points() ([]model.Coordinates, error) {
	raw := d.Waypoints
	if d.Route != "" {
		raw = util.DecodePolyline(d.Route)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty route")
	}

	out := make([]model.Coordinates, len(raw))
	for i, p := range raw {
		c := model.Coordinates{Lat: p[0], Lng: p[1]}
		if !c.Valid() {
			return nil, fmt.Errorf("waypoint %d out of range: %v", i, p)
		}
		out[i] = c
	}
	return out, nil
}
