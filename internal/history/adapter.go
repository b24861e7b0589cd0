// Package history turns stored position records into the same view states the
// live tracker produces.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/paulmach/orb"

	"assettracker/internal/model"
	"assettracker/internal/tracker"
	"assettracker/internal/util"
)

var ErrInvalidQuery = errors.New("invalid history query")

// Store is the external tracking store. Implementations may return rows in
// any order.
type Store interface {
	PositionsBetween(ctx context.Context, deviceID string, start, end time.Time) ([]model.PositionUpdate, error)
}

type Adapter struct {
	store    Store
	segments int
}

// NewAdapter wraps store. segments sizes the replayed accuracy rings.
func NewAdapter(store Store, segments int) *Adapter {
	return &Adapter{store: store, segments: segments}
}

// QueryHistory returns the device's updates with start <= sampleTime <= end in
// ascending sample time order. An empty or inverted range yields an empty
// slice and no error.
func (a *Adapter) QueryHistory(ctx context.Context, deviceID string, start, end time.Time) ([]model.PositionUpdate, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: empty device id", ErrInvalidQuery)
	}
	if !end.After(start) {
		return []model.PositionUpdate{}, nil
	}

	rows, err := a.store.PositionsBetween(ctx, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", deviceID, err)
	}

	out := make([]model.PositionUpdate, 0, len(rows))
	for _, u := range rows {
		if u.DeviceID != deviceID || u.SampleTime.Before(start) || u.SampleTime.After(end) {
			continue
		}
		out = append(out, u)
	}
	slices.SortStableFunc(out, func(x, y model.PositionUpdate) int {
		return x.SampleTime.Compare(y.SampleTime)
	})
	return out, nil
}

// Replay feeds the history through a fresh view state and returns the
// snapshot after every accepted update, exactly as a live subscriber
// would have rendered it.
func (a *Adapter) Replay(ctx context.Context, deviceID string, start, end time.Time) ([]tracker.View, error) {
	updates, err := a.QueryHistory(ctx, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	return ReplayUpdates(deviceID, updates, a.segments), nil
}

// ReplayUpdates applies updates in order to a new ViewState
func ReplayUpdates(deviceID string, updates []model.PositionUpdate, segments int) []tracker.View {
	view := tracker.NewViewState(deviceID, segments)
	out := make([]tracker.View, 0, len(updates))
	for _, u := range updates {
		if view.Apply(u) {
			out = append(out, view.Snapshot())
		}
	}
	return out
}

// Track is a device path in both GeoJSON and encoded polyline form
type Track struct {
	DeviceID string         `json:"deviceId"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Points   int            `json:"points"`
	Line     orb.LineString `json:"line"`
	Polyline string         `json:"polyline"`
}

// Track returns the path between start and end
func (a *Adapter) Track(ctx context.Context, deviceID string, start, end time.Time) (Track, error) {
	updates, err := a.QueryHistory(ctx, deviceID, start, end)
	if err != nil {
		return Track{}, err
	}

	line := make(orb.LineString, 0, len(updates))
	coords := make([][2]float64, 0, len(updates))
	for _, u := range updates {
		line = append(line, u.Point())
		coords = append(coords, [2]float64{u.Lat, u.Lng})
	}
	return Track{
		DeviceID: deviceID,
		Start:    start,
		End:      end,
		Points:   len(line),
		Line:     line,
		Polyline: util.EncodePolyline(coords),
	}, nil
}
