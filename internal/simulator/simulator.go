package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tevino/abool/v2"

	"assettracker/internal/geometry"
	"assettracker/internal/model"
)

// Sink accepts simulated fixes
type Sink interface {
	Ingest(ctx context.Context, u model.PositionUpdate) error
}

type walker struct {
	spec    DeviceSpec
	route   []model.Coordinates
	next    int
	pos     model.Coordinates
	battery float64
	parked  bool
}

// advance moves the walker along its route and reports whether it is still
// on the way
func (w *walker) advance(meters float64) bool {
	for meters > 0 && w.next < len(w.route) {
		target := w.route[w.next]
		leg := geometry.Distance(w.pos, target)
		if meters < leg {
			w.pos = geometry.MoveToward(w.pos, target, meters)
			return true
		}
		w.pos = target
		meters -= leg
		w.next++
		if w.next == len(w.route) && w.spec.Loop {
			w.next = 0
		}
	}
	return w.next < len(w.route)
}

// Simulator owns the walkers of one scenario
type Simulator struct {
	sink   Sink
	logger *slog.Logger
	paused *abool.AtomicBool

	mu      sync.Mutex
	walkers []*walker
	last    time.Time
}

func New(s Scenario, sink Sink, logger *slog.Logger) (*Simulator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sim := &Simulator{sink: sink, logger: logger.With("component", "simulator"), paused: abool.New()}

	for _, d := range s.Devices {
		route, err := d.Points()
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
		w := &walker{spec: d, route: route, pos: route[0], next: 1, battery: d.Battery}
		if d.Loop && routeLength(route) == 0 {
			w.spec.Loop = false
		}
		sim.walkers = append(sim.walkers, w)
	}
	return sim, nil
}

func routeLength(route []model.Coordinates) float64 {
	total := 0.0
	for i := 1; i < len(route); i++ {
		total += geometry.Distance(route[i-1], route[i])
	}
	return total
}

// Step advances every walker to now and ingests one fix per moving device.
// The first step reports the starting positions. A device that reached the
// end of a non-looping route reports its final fix once and then goes quiet.
func (s *Simulator) Step(ctx context.Context, now time.Time) (int, error) {
	if s.paused.IsSet() {
		return 0, nil
	}

	s.mu.Lock()
	elapsed := 0.0
	if !s.last.IsZero() && now.After(s.last) {
		elapsed = now.Sub(s.last).Seconds()
	}
	s.last = now

	fixes := make([]model.PositionUpdate, 0, len(s.walkers))
	for _, w := range s.walkers {
		if w.parked {
			continue
		}
		moving := w.advance(w.spec.SpeedMps * elapsed)
		w.battery = max(0, w.battery-w.spec.DrainPerHour*elapsed/3600)
		if !moving {
			w.parked = true
		}
		fixes = append(fixes, w.fix(now, moving))
	}
	s.mu.Unlock()

	for _, u := range fixes {
		if err := s.sink.Ingest(ctx, u); err != nil {
			return 0, fmt.Errorf("failed to ingest simulated fix for %s: %w", u.DeviceID, err)
		}
	}
	if len(fixes) > 0 {
		s.logger.Debug("simulation step", "fixes", len(fixes))
	}
	return len(fixes), nil
}

func (w *walker) fix(now time.Time, moving bool) model.PositionUpdate {
	acc := model.UnknownAccuracy
	if w.spec.AccuracyMeters != nil {
		acc = model.KnownAccuracy(*w.spec.AccuracyMeters)
	}
	meta := model.Metadata{
		"batteryLevel": w.battery,
		"motion":       moving,
		"simulated":    true,
	}
	return model.NewPositionUpdate(w.spec.ID, w.pos, now, acc, meta)
}

// Pause freezes every walker in place
func (s *Simulator) Pause() {
	s.paused.Set()
}

// Resume continues from where Pause left off. Time spent paused is not
// walked.
func (s *Simulator) Resume() {
	s.mu.Lock()
	s.last = time.Time{}
	s.mu.Unlock()
	s.paused.UnSet()
}

func (s *Simulator) Paused() bool {
	return s.paused.IsSet()
}

// Reset puts every walker back at the start of its route
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = time.Time{}
	for _, w := range s.walkers {
		w.pos = w.route[0]
		w.next = 1
		w.battery = w.spec.Battery
		w.parked = false
	}
}

// DeviceIDs lists the simulated devices
func (s *Simulator) DeviceIDs() []string {
	out := make([]string, len(s.walkers))
	for i, w := range s.walkers {
		out[i] = w.spec.ID
	}
	return out
}
