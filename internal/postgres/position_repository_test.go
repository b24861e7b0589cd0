package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"assettracker/internal/model"
)

// Requires a reachable Postgres; set DB_URL to run.
func TestPositionRepository(t *testing.T) {
	url := os.Getenv("DB_URL")
	if url == "" {
		t.Skip("DB_URL not set")
	}

	db, err := Init(url)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close(db)

	ctx := context.Background()
	repo := NewPositionRepository(db, 2)
	const device = "it-history-device"
	t.Cleanup(func() { db.Where("device_id = ?", device).Delete(&model.PositionPG{}) })

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	updates := []model.PositionUpdate{
		model.NewPositionUpdate(device, model.Coordinates{Lat: 3, Lng: 3}, base.Add(3*time.Minute), model.UnknownAccuracy, nil),
		model.NewPositionUpdate(device, model.Coordinates{Lat: 1, Lng: 1}, base.Add(1*time.Minute), model.KnownAccuracy(8), model.Metadata{"batteryLevel": 70.0}),
		model.NewPositionUpdate(device, model.Coordinates{Lat: 2, Lng: 2}, base.Add(2*time.Minute), model.UnknownAccuracy, nil),
	}
	if err := repo.InsertBatch(ctx, updates); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	got, err := repo.PositionsBetween(ctx, device, base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PositionsBetween: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Lat != 1 || got[1].Lat != 2 {
		t.Errorf("order = %v, %v", got[0].Lat, got[1].Lat)
	}
	if !got[0].Accuracy.Known || got[0].Accuracy.Meters != 8 || got[1].Accuracy.Known {
		t.Errorf("accuracy = %+v, %+v", got[0].Accuracy, got[1].Accuracy)
	}
	if got[0].Metadata["batteryLevel"] != 70.0 {
		t.Errorf("metadata = %v", got[0].Metadata)
	}
}
