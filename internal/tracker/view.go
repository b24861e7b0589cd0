package tracker

import (
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"assettracker/internal/geometry"
	"assettracker/internal/model"
)

// State is the lifecycle of one device's view
type State int

const (
	StateUnknown State = iota
	StateTracked
	StateStale
)

func (s State) String() string {
	switch s {
	case StateTracked:
		return "tracked"
	case StateStale:
		return "stale"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ViewState is the live rendering state of one device: its last accepted
// position, the accuracy ring around it and the local popup toggle.
// It is safe for concurrent use.
type ViewState struct {
	mu sync.Mutex

	deviceID string
	segments int
	state    State

	latest    model.PositionUpdate
	hasLatest bool

	ring      orb.Ring
	ringDirty bool

	popupOpen    bool
	lastGeofence *model.GeofenceEvent
}

// NewViewState creates an empty view. segments <= 0 uses geometry.DefaultSegments.
func NewViewState(deviceID string, segments int) *ViewState {
	if segments <= 0 {
		segments = geometry.DefaultSegments
	}
	return &ViewState{deviceID: deviceID, segments: segments}
}

func (v *ViewState) DeviceID() string {
	return v.deviceID
}

// Apply folds u into the view. Updates for another device, updates whose
// sample time is not strictly after the held one and anything arriving after
// MarkStale are discarded and Apply returns false. The popup toggle is never
// touched.
func (v *ViewState) Apply(u model.PositionUpdate) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if u.DeviceID != v.deviceID || v.state == StateStale {
		return false
	}
	if v.hasLatest && !u.NewerThan(v.latest) {
		return false
	}

	v.latest = u
	v.hasLatest = true
	v.state = StateTracked

	v.ring = nil
	v.ringDirty = u.Accuracy.Known
	return true
}

// Polygon returns the accuracy ring for the current position, computing it on
// first use after an update. ok is false when accuracy is unknown.
func (v *ViewState) Polygon() (orb.Ring, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.polygonLocked()
}

func (v *ViewState) polygonLocked() (orb.Ring, bool) {
	if !v.hasLatest || !v.latest.Accuracy.Known {
		return nil, false
	}
	if v.ringDirty {
		ring, err := geometry.CirclePolygon(v.latest.Coordinates, v.latest.Accuracy.Meters, v.segments)
		if err != nil {
			// decoded updates always carry a valid center and radius
			return nil, false
		}
		v.ring = ring
		v.ringDirty = false
	}
	return v.ring, true
}

func (v *ViewState) TogglePopup() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.popupOpen = !v.popupOpen
	return v.popupOpen
}

func (v *ViewState) SetPopup(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.popupOpen = open
}

func (v *ViewState) PopupOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.popupOpen
}

// RecordGeofence keeps the most recent geofence event by sample time
func (v *ViewState) RecordGeofence(ev model.GeofenceEvent) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ev.DeviceID != v.deviceID {
		return false
	}
	if v.lastGeofence != nil && ev.SampleTime.Before(v.lastGeofence.SampleTime) {
		return false
	}
	v.lastGeofence = &ev
	return true
}

// MarkStale flags the view as no longer fed by live updates. The last position
// stays and later updates are refused.
func (v *ViewState) MarkStale() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = StateStale
}

func (v *ViewState) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Latest returns the last accepted update
func (v *ViewState) Latest() (model.PositionUpdate, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.latest, v.hasLatest
}

// Snapshot copies the view for rendering
func (v *ViewState) Snapshot() View {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := View{
		DeviceID:  v.deviceID,
		State:     v.state,
		PopupOpen: v.popupOpen,
	}
	if v.hasLatest {
		u := v.latest
		out.Position = &u
	}
	if ring, ok := v.polygonLocked(); ok {
		out.AccuracyRing = slices.Clone(ring)
	}
	if v.lastGeofence != nil {
		g := *v.lastGeofence
		out.LastGeofence = &g
	}
	return out
}

// View is an immutable rendering of a ViewState
type View struct {
	DeviceID     string                `json:"deviceId"`
	State        State                 `json:"state"`
	Position     *model.PositionUpdate `json:"position,omitempty"`
	AccuracyRing orb.Ring              `json:"accuracyRing,omitempty"`
	PopupOpen    bool                  `json:"popupOpen"`
	LastGeofence *model.GeofenceEvent  `json:"lastGeofence,omitempty"`
}

// Feature renders the marker as a GeoJSON point, or nil before the first fix
func (v View) Feature() *geojson.Feature {
	if v.Position == nil {
		return nil
	}

	f := geojson.NewFeature(v.Position.Point())
	f.ID = v.DeviceID
	f.Properties["deviceId"] = v.DeviceID
	f.Properties["state"] = v.State.String()
	f.Properties["sampleTime"] = v.Position.SampleTime.UTC().Format(time.RFC3339Nano)
	f.Properties["popupOpen"] = v.PopupOpen
	if v.Position.Accuracy.Known {
		f.Properties["accuracyMeters"] = v.Position.Accuracy.Meters
	}
	for k, val := range v.Position.Metadata {
		if _, taken := f.Properties[k]; !taken {
			f.Properties[k] = val
		}
	}
	if v.LastGeofence != nil {
		f.Properties["geofenceId"] = v.LastGeofence.GeofenceID
		f.Properties["geofenceEvent"] = string(v.LastGeofence.EventType)
	}
	return f
}

// AccuracyFeature renders the accuracy ring as a GeoJSON polygon, or nil when unknown
func (v View) AccuracyFeature() *geojson.Feature {
	if len(v.AccuracyRing) == 0 || v.Position == nil {
		return nil
	}
	f := geojson.NewFeature(orb.Polygon{v.AccuracyRing})
	f.Properties["deviceId"] = v.DeviceID
	f.Properties["kind"] = "accuracy"
	f.Properties["radiusMeters"] = v.Position.Accuracy.Meters
	return f
}

// FeatureCollection holds the marker and, when known, the accuracy polygon
func (v View) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if f := v.Feature(); f != nil {
		fc.Append(f)
	}
	if f := v.AccuracyFeature(); f != nil {
		fc.Append(f)
	}
	return fc
}
