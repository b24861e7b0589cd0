// Package tracker keeps the live view model of tracked devices.
//
// A Tracker subscribes to the hub's position and geofence topics and folds
// events into one ViewState per device. Updates arriving out of order are
// discarded by the view, so the rendered position never moves backwards in time.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/tevino/abool/v2"

	"assettracker/internal/geometry"
	"assettracker/internal/hub"
	"assettracker/internal/model"
)

const defaultChangeBuffer = 64

type Options struct {
	// Segments of the accuracy ring; 0 means geometry.DefaultSegments
	Segments int
	// Devices restricts the tracker to these ids; empty means every device
	Devices []string
	// OnGeofence is called for geofence events of watched devices
	OnGeofence func(ctx context.Context, ev model.GeofenceEvent)
	// ChangeBuffer is the capacity of the Changes channel
	ChangeBuffer int
	Logger       *slog.Logger
}

type Tracker struct {
	views cmap.ConcurrentMap[string, *ViewState]

	watchMu  sync.RWMutex
	watch    map[string]struct{}
	filtered bool

	segments   int
	onGeofence func(ctx context.Context, ev model.GeofenceEvent)
	changes    chan string
	done       chan struct{}
	closed     *abool.AtomicBool
	logger     *slog.Logger

	positionSub *hub.Subscription
	geofenceSub *hub.Subscription
}

// New starts a tracker fed by h. It is live once New returns.
func New(h *hub.Hub, opts Options) (*Tracker, error) {
	if opts.Segments <= 0 {
		opts.Segments = geometry.DefaultSegments
	}
	if opts.ChangeBuffer <= 0 {
		opts.ChangeBuffer = defaultChangeBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &Tracker{
		views:      cmap.New[*ViewState](),
		watch:      map[string]struct{}{},
		segments:   opts.Segments,
		onGeofence: opts.OnGeofence,
		changes:    make(chan string, opts.ChangeBuffer),
		done:       make(chan struct{}),
		closed:     abool.New(),
		logger:     opts.Logger.With("component", "tracker"),
	}
	for _, id := range opts.Devices {
		t.watch[id] = struct{}{}
		t.filtered = true
	}

	var err error
	t.positionSub, err = h.Subscribe(hub.TopicPositionUpdate, hub.OnPosition(t.handlePosition))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to positions: %w", err)
	}
	t.geofenceSub, err = h.Subscribe(hub.TopicGeofenceEvent, hub.OnGeofence(t.handleGeofence))
	if err != nil {
		t.positionSub.Unsubscribe()
		return nil, fmt.Errorf("failed to subscribe to geofence events: %w", err)
	}
	return t, nil
}

// Watch adds devices to the interest set. The first call switches the tracker
// from "every device" to "only watched devices".
func (t *Tracker) Watch(deviceIDs ...string) {
	t.watchMu.Lock()
	defer t.watchMu.Unlock()
	for _, id := range deviceIDs {
		t.watch[id] = struct{}{}
	}
	t.filtered = true
}

// Unwatch removes devices from the interest set. Their views are kept.
func (t *Tracker) Unwatch(deviceIDs ...string) {
	t.watchMu.Lock()
	defer t.watchMu.Unlock()
	for _, id := range deviceIDs {
		delete(t.watch, id)
	}
}

// WatchAll clears the interest set so every device is tracked again
func (t *Tracker) WatchAll() {
	t.watchMu.Lock()
	defer t.watchMu.Unlock()
	t.watch = map[string]struct{}{}
	t.filtered = false
}

func (t *Tracker) Interested(deviceID string) bool {
	t.watchMu.RLock()
	defer t.watchMu.RUnlock()
	if !t.filtered {
		return true
	}
	_, ok := t.watch[deviceID]
	return ok
}

func (t *Tracker) viewFor(deviceID string) *ViewState {
	return t.views.Upsert(deviceID, nil, func(exist bool, current, _ *ViewState) *ViewState {
		if exist {
			return current
		}
		return NewViewState(deviceID, t.segments)
	})
}

func (t *Tracker) handlePosition(_ context.Context, u model.PositionUpdate) error {
	if t.closed.IsSet() || !t.Interested(u.DeviceID) {
		return nil
	}
	if !t.apply(u) {
		t.logger.Debug("discarded update", "device", u.DeviceID, "sampleTime", u.SampleTime)
	}
	return nil
}

// apply is shared by live and seeded updates. Close may run concurrently, so
// a view touched after it started is marked stale again and nobody is notified.
func (t *Tracker) apply(u model.PositionUpdate) bool {
	v := t.viewFor(u.DeviceID)
	if !v.Apply(u) {
		return false
	}
	if t.closed.IsSet() {
		v.MarkStale()
		return false
	}
	t.notify(u.DeviceID)
	return true
}

// Seed applies a known position, such as the cached latest fix, as if it had
// arrived from the hub
func (t *Tracker) Seed(u model.PositionUpdate) bool {
	if t.closed.IsSet() || !t.Interested(u.DeviceID) {
		return false
	}
	return t.apply(u)
}

func (t *Tracker) handleGeofence(ctx context.Context, ev model.GeofenceEvent) error {
	if t.closed.IsSet() || !t.Interested(ev.DeviceID) {
		return nil
	}
	v := t.viewFor(ev.DeviceID)
	if !v.RecordGeofence(ev) {
		return nil
	}
	if t.closed.IsSet() {
		v.MarkStale()
		return nil
	}
	if t.onGeofence != nil {
		t.onGeofence(ctx, ev)
	}
	t.notify(ev.DeviceID)
	return nil
}

// notify never blocks; a dropped id is covered by the next snapshot
func (t *Tracker) notify(deviceID string) {
	select {
	case t.changes <- deviceID:
	default:
	}
}

// Changes yields ids of devices whose view changed
func (t *Tracker) Changes() <-chan string {
	return t.changes
}

// Done is closed by Close
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// View returns a snapshot of one device
func (t *Tracker) View(deviceID string) (View, bool) {
	v, ok := t.views.Get(deviceID)
	if !ok {
		return View{}, false
	}
	return v.Snapshot(), true
}

// ViewState exposes the live state of one device, for popup toggling
func (t *Tracker) ViewState(deviceID string) (*ViewState, bool) {
	return t.views.Get(deviceID)
}

// Views returns snapshots of every device ordered by id
func (t *Tracker) Views() []View {
	items := t.views.Items()
	out := make([]View, 0, len(items))
	for _, v := range items {
		out = append(out, v.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// LastGeofence returns the most recent geofence event seen for a device
func (t *Tracker) LastGeofence(deviceID string) (model.GeofenceEvent, bool) {
	v, ok := t.views.Get(deviceID)
	if !ok {
		return model.GeofenceEvent{}, false
	}
	snap := v.Snapshot()
	if snap.LastGeofence == nil {
		return model.GeofenceEvent{}, false
	}
	return *snap.LastGeofence, true
}

// Close unsubscribes from the hub and marks every view stale. Safe to call twice.
func (t *Tracker) Close() {
	if !t.closed.SetToIf(false, true) {
		return
	}
	t.positionSub.Unsubscribe()
	t.geofenceSub.Unsubscribe()

	for _, v := range t.views.Items() {
		v.MarkStale()
	}
	close(t.done)
}
