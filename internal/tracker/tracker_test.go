package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"assettracker/internal/hub"
	"assettracker/internal/model"
	"assettracker/internal/observability"
)

func newHub() *hub.Hub {
	return hub.New(hub.WithLogger(observability.Discard()))
}

func geofence(t *testing.T, device string, sec int64, typ model.GeofenceEventType) model.GeofenceEvent {
	t.Helper()
	ev, err := model.NewGeofenceEvent(device, "depot", typ, time.Unix(sec, 0))
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestTrackerFollowsHub(t *testing.T) {
	h := newHub()
	tr, err := New(h, Options{Logger: observability.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	ctx := context.Background()

	h.PublishPosition(ctx, fix("a", 10, 1, 1, model.KnownAccuracy(5)))
	h.PublishPosition(ctx, fix("a", 5, 9, 9, model.UnknownAccuracy))
	h.PublishPosition(ctx, fix("b", 1, 2, 2, model.UnknownAccuracy))

	v, ok := tr.View("a")
	if !ok || v.Position == nil || v.Position.Lat != 1 {
		t.Fatalf("view a = %+v", v)
	}
	if len(v.AccuracyRing) == 0 {
		t.Error("missing accuracy ring")
	}
	if views := tr.Views(); len(views) != 2 || views[0].DeviceID != "a" || views[1].DeviceID != "b" {
		t.Errorf("views = %+v", views)
	}
}

func TestTrackerWatchFilters(t *testing.T) {
	h := newHub()
	var mu sync.Mutex
	var forwarded []model.GeofenceEvent

	tr, err := New(h, Options{
		Devices: []string{"a"},
		OnGeofence: func(_ context.Context, ev model.GeofenceEvent) {
			mu.Lock()
			forwarded = append(forwarded, ev)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	ctx := context.Background()

	h.PublishPosition(ctx, fix("b", 1, 1, 1, model.UnknownAccuracy))
	if _, ok := tr.View("b"); ok {
		t.Error("unwatched device got a view")
	}

	h.PublishGeofence(ctx, geofence(t, "b", 1, model.GeofenceEnter))
	h.PublishGeofence(ctx, geofence(t, "a", 2, model.GeofenceEnter))

	mu.Lock()
	if len(forwarded) != 1 || forwarded[0].DeviceID != "a" {
		t.Errorf("forwarded = %+v", forwarded)
	}
	mu.Unlock()

	last, ok := tr.LastGeofence("a")
	if !ok || last.EventType != model.GeofenceEnter {
		t.Errorf("last geofence = %+v, %v", last, ok)
	}
	if _, ok := tr.LastGeofence("b"); ok {
		t.Error("geofence recorded for unwatched device")
	}

	tr.Watch("b")
	h.PublishPosition(ctx, fix("b", 2, 1, 1, model.UnknownAccuracy))
	if _, ok := tr.View("b"); !ok {
		t.Error("watched device has no view")
	}

	tr.Unwatch("a")
	h.PublishPosition(ctx, fix("a", 3, 1, 1, model.UnknownAccuracy))
	if _, ok := tr.View("a"); ok {
		t.Error("unwatched device a got a view")
	}

	tr.WatchAll()
	if !tr.Interested("zzz") {
		t.Error("WatchAll did not reset the filter")
	}
}

func TestTrackerChanges(t *testing.T) {
	h := newHub()
	tr, err := New(h, Options{ChangeBuffer: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	ctx := context.Background()

	h.PublishPosition(ctx, fix("a", 1, 1, 1, model.UnknownAccuracy))
	// buffer is full, this must not block
	h.PublishPosition(ctx, fix("a", 2, 1, 1, model.UnknownAccuracy))

	select {
	case id := <-tr.Changes():
		if id != "a" {
			t.Errorf("change for %q", id)
		}
	default:
		t.Fatal("no change notification")
	}

	// discarded updates do not notify
	h.PublishPosition(ctx, fix("a", 1, 1, 1, model.UnknownAccuracy))
	select {
	case id := <-tr.Changes():
		t.Errorf("unexpected change for %q", id)
	default:
	}
}

func TestTrackerClose(t *testing.T) {
	h := newHub()
	tr, err := New(h, Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	h.PublishPosition(ctx, fix("a", 1, 1, 1, model.UnknownAccuracy))
	tr.Close()
	tr.Close()

	select {
	case <-tr.Done():
	default:
		t.Error("Done not closed")
	}
	if stats := h.Stats(); stats[hub.TopicPositionUpdate] != 0 || stats[hub.TopicGeofenceEvent] != 0 {
		t.Errorf("subscriptions left after Close: %v", stats)
	}

	v, _ := tr.View("a")
	if v.State != StateStale {
		t.Errorf("state = %v", v.State)
	}

	h.PublishPosition(ctx, fix("a", 2, 5, 5, model.UnknownAccuracy))
	if v, _ := tr.View("a"); v.Position.Lat != 1 {
		t.Error("closed tracker applied an update")
	}

	// hub teardown after tracker close is harmless
	h.Close()
	tr.Close()
}

func TestTrackerSeed(t *testing.T) {
	h := newHub()
	tr, err := New(h, Options{Devices: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if !tr.Seed(fix("a", 10, 1, 1, model.UnknownAccuracy)) {
		t.Fatal("seed rejected")
	}
	if tr.Seed(fix("b", 10, 1, 1, model.UnknownAccuracy)) {
		t.Error("seeded an unwatched device")
	}
	if tr.Seed(fix("a", 10, 2, 2, model.UnknownAccuracy)) {
		t.Error("seed with equal sample time accepted")
	}

	h.PublishPosition(context.Background(), fix("a", 5, 9, 9, model.UnknownAccuracy))
	if v, _ := tr.View("a"); v.Position.Lat != 1 {
		t.Errorf("older live update replaced the seed: %+v", v.Position)
	}
}

func TestTrackerCloseDuringDelivery(t *testing.T) {
	for i := 0; i < 200; i++ {
		h := newHub()
		tr, err := New(h, Options{})
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sec := int64(1); sec <= 20; sec++ {
				h.PublishPosition(context.Background(), fix("a", sec, 1, 1, model.UnknownAccuracy))
				h.PublishPosition(context.Background(), fix(string(rune('b'+sec)), sec, 1, 1, model.UnknownAccuracy))
			}
		}()
		tr.Close()
		wg.Wait()

		for _, v := range tr.Views() {
			if v.State != StateStale {
				t.Fatalf("iteration %d: view %s is %v after Close", i, v.DeviceID, v.State)
			}
		}
		h.Close()
	}
}
