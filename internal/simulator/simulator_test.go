package simulator

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"assettracker/internal/geometry"
	"assettracker/internal/model"
	"assettracker/internal/observability"
)

type collectSink struct {
	got []model.PositionUpdate
	err error
}

func (c *collectSink) Ingest(_ context.Context, u model.PositionUpdate) error {
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, u)
	return nil
}

const scenarioYAML = `
devices:
  - id: truck-1
    waypoints: [[0, 0], [0, 0.01]]
    speedMps: 100
    accuracyMeters: 15
    battery: 90
    drainPerHour: 3600
  - id: truck-2
    route: "_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@"
    speedMps: 10
    loop: true
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(scenarioYAML))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	if len(s.Devices) != 2 || s.Devices[0].AccuracyMeters == nil || *s.Devices[0].AccuracyMeters != 15 {
		t.Fatalf("devices = %+v", s.Devices)
	}
	pts, err := s.Devices[1].Points()
	if err != nil || len(pts) != 3 || math.Abs(pts[0].Lat-38.5) > 1e-9 || math.Abs(pts[0].Lng+120.2) > 1e-9 {
		t.Errorf("decoded route = %v, %v", pts, err)
	}
}

func TestParseScenarioRejects(t *testing.T) {
	tests := map[string]string{
		"no devices":   `devices: []`,
		"no route":     "devices:\n  - id: a\n    speedMps: 1\n",
		"zero speed":   "devices:\n  - id: a\n    waypoints: [[0, 0]]\n    speedMps: 0\n",
		"bad waypoint": "devices:\n  - id: a\n    waypoints: [[95, 0]]\n    speedMps: 1\n",
		"duplicate":    "devices:\n  - id: a\n    waypoints: [[0, 0]]\n    speedMps: 1\n  - id: a\n    waypoints: [[0, 0]]\n    speedMps: 1\n",
		"bad yaml":     "devices: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseScenario([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStepWalksRoute(t *testing.T) {
	s, err := ParseScenario([]byte(scenarioYAML))
	if err != nil {
		t.Fatal(err)
	}
	s.Devices = s.Devices[:1]
	sink := &collectSink{}
	sim, err := New(s, sink, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	origin := model.Coordinates{}

	if n, err := sim.Step(ctx, t0); err != nil || n != 1 {
		t.Fatalf("first step = %d, %v", n, err)
	}
	if sink.got[0].Coordinates != origin {
		t.Errorf("first fix = %+v, want route start", sink.got[0].Coordinates)
	}

	sim.Step(ctx, t0.Add(5*time.Second))
	moved := geometry.Distance(origin, sink.got[1].Coordinates)
	if math.Abs(moved-500) > 0.01 {
		t.Errorf("moved %v m in 5 s at 100 m/s", moved)
	}
	fix := sink.got[1]
	if !fix.Accuracy.Known || fix.Accuracy.Meters != 15 || fix.Metadata["motion"] != true {
		t.Errorf("fix = %+v", fix)
	}
	if b := fix.Metadata["batteryLevel"].(float64); math.Abs(b-85) > 1e-9 {
		t.Errorf("battery = %v", b)
	}

	// the leg is about 1.1 km, so this reaches the end
	sim.Step(ctx, t0.Add(60*time.Second))
	last := sink.got[2]
	if last.Coordinates != (model.Coordinates{Lat: 0, Lng: 0.01}) || last.Metadata["motion"] != false {
		t.Errorf("final fix = %+v", last)
	}

	if n, _ := sim.Step(ctx, t0.Add(70*time.Second)); n != 0 {
		t.Errorf("parked device emitted %d fixes", n)
	}
}

func TestStepLoops(t *testing.T) {
	acc := 5.0
	sim, err := New(Scenario{Devices: []DeviceSpec{{
		ID:             "loop",
		Waypoints:      [][2]float64{{0, 0}, {0, 0.001}},
		SpeedMps:       10,
		AccuracyMeters: &acc,
		Loop:           true,
	}}}, &collectSink{}, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	t0 := time.Unix(0, 0)
	sim.Step(ctx, t0)

	// one hour of walking back and forth must never park the device
	for i := 1; i <= 10; i++ {
		if n, err := sim.Step(ctx, t0.Add(time.Duration(i)*6*time.Minute)); err != nil || n != 1 {
			t.Fatalf("step %d = %d, %v", i, n, err)
		}
	}
}

func TestStepSinkError(t *testing.T) {
	sim, err := New(Scenario{Devices: []DeviceSpec{{ID: "a", Waypoints: [][2]float64{{1, 1}}, SpeedMps: 1}}},
		&collectSink{err: errors.New("closed")}, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sim.Step(context.Background(), time.Now()); err == nil || !strings.Contains(err.Error(), "for a:") {
		t.Errorf("err = %v", err)
	}
}

func TestPauseResumeReset(t *testing.T) {
	sink := &collectSink{}
	sim, err := New(Scenario{Devices: []DeviceSpec{{ID: "a", Waypoints: [][2]float64{{0, 0}, {0, 1}}, SpeedMps: 10}}},
		sink, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	t0 := time.Unix(0, 0)
	sim.Step(ctx, t0)

	sim.Pause()
	if n, _ := sim.Step(ctx, t0.Add(time.Second)); n != 0 || !sim.Paused() {
		t.Fatalf("paused simulator emitted %d fixes", n)
	}

	sim.Resume()
	sim.Step(ctx, t0.Add(100*time.Second))
	if d := geometry.Distance(model.Coordinates{}, sink.got[1].Coordinates); d != 0 {
		t.Errorf("walked %v m across the pause", d)
	}
	sim.Step(ctx, t0.Add(101*time.Second))
	if d := geometry.Distance(model.Coordinates{}, sink.got[2].Coordinates); math.Abs(d-10) > 0.01 {
		t.Errorf("walked %v m in one second", d)
	}

	sim.Reset()
	sim.Step(ctx, t0.Add(200*time.Second))
	if sink.got[3].Coordinates != (model.Coordinates{}) {
		t.Errorf("reset fix = %+v", sink.got[3].Coordinates)
	}
	if ids := sim.DeviceIDs(); len(ids) != 1 || ids[0] != "a" {
		t.Errorf("ids = %v", ids)
	}
}
