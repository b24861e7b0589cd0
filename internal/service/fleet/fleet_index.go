// Package fleet indexes the latest position of every device for map queries.
package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"assettracker/internal/geometry"
	"assettracker/internal/hub"
	"assettracker/internal/model"
)

// pointTolerance is the half size, in degrees, of the box indexed for a point
const pointTolerance = 1e-9

type deviceSpatial struct {
	position model.PositionUpdate
	rect     rtreego.Rect
}

// Bounds implements the rtreego.Spatial interface
func (d *deviceSpatial) Bounds() rtreego.Rect {
	return d.rect
}

// Index is an R-tree over the newest position of each device
type Index struct {
	mu      sync.RWMutex
	tree    *rtreego.Rtree
	devices map[string]*deviceSpatial

	sub *hub.Subscription
}

func NewIndex() *Index {
	return &Index{
		tree:    rtreego.NewTree(2, 25, 50),
		devices: map[string]*deviceSpatial{},
	}
}

// Attach feeds the index from the hub's position topic
func (x *Index) Attach(h *hub.Hub) error {
	sub, err := h.Subscribe(hub.TopicPositionUpdate, hub.OnPosition(func(_ context.Context, u model.PositionUpdate) error {
		x.Update(u)
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to attach fleet index: %w", err)
	}
	x.sub = sub
	return nil
}

// Detach stops following the hub
func (x *Index) Detach() {
	if x.sub != nil {
		x.sub.Unsubscribe()
	}
}

// Update moves a device to u unless the index already holds a newer fix
func (x *Index) Update(u model.PositionUpdate) bool {
	entry := &deviceSpatial{
		position: u,
		rect:     rtreego.Point{u.Lng, u.Lat}.ToRect(pointTolerance),
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.devices[u.DeviceID]; ok {
		if !u.NewerThan(old.position) {
			return false
		}
		x.tree.Delete(old)
	}
	x.tree.Insert(entry)
	x.devices[u.DeviceID] = entry
	return true
}

func (x *Index) Remove(deviceID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	old, ok := x.devices[deviceID]
	if !ok {
		return false
	}
	x.tree.Delete(old)
	delete(x.devices, deviceID)
	return true
}

func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.devices)
}

// InBounds returns devices inside b ([lng, lat] corners), ordered by id
func (x *Index) InBounds(b orb.Bound) []model.PositionUpdate {
	rect, err := rtreego.NewRect(
		rtreego.Point{b.Min[0] - pointTolerance, b.Min[1] - pointTolerance},
		[]float64{b.Max[0] - b.Min[0] + 2*pointTolerance, b.Max[1] - b.Min[1] + 2*pointTolerance},
	)
	if err != nil {
		return nil
	}

	x.mu.RLock()
	hits := x.tree.SearchIntersect(rect)
	x.mu.RUnlock()

	out := make([]model.PositionUpdate, 0, len(hits))
	for _, h := range hits {
		u := h.(*deviceSpatial).position
		if b.Contains(u.Point()) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Within returns devices within radiusMeters of center, closest first
func (x *Index) Within(center model.Coordinates, radiusMeters float64) []model.PositionUpdate {
	candidates := x.InBounds(geometry.BoundAround(center, radiusMeters))

	out := candidates[:0]
	for _, u := range candidates {
		if geometry.Distance(center, u.Coordinates) <= radiusMeters {
			out = append(out, u)
		}
	}
	sortByDistance(center, out)
	return out
}

// Nearest returns up to k devices closest to center by great-circle distance
func (x *Index) Nearest(center model.Coordinates, k int) []model.PositionUpdate {
	if k <= 0 {
		return nil
	}

	x.mu.RLock()
	// the tree ranks by planar degrees; over-fetch and re-rank on the sphere
	hits := x.tree.NearestNeighbors(2*k, rtreego.Point{center.Lng, center.Lat})
	x.mu.RUnlock()

	out := make([]model.PositionUpdate, 0, len(hits))
	for _, h := range hits {
		if h == nil {
			continue
		}
		out = append(out, h.(*deviceSpatial).position)
	}
	sortByDistance(center, out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func sortByDistance(center model.Coordinates, us []model.PositionUpdate) {
	sort.SliceStable(us, func(i, j int) bool {
		return geometry.Distance(center, us[i].Coordinates) < geometry.Distance(center, us[j].Coordinates)
	})
}
