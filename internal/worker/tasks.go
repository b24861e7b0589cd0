package worker

import (
	"context"
	"time"

	"assettracker/internal/config"
	"assettracker/internal/service/position"
	"assettracker/internal/simulator"
)

// HistoryFlushTask writes queued positions to the tracking store
func HistoryFlushTask(svc *position.PositionService) Task {
	return Task{
		Name:      "history-flush",
		Interval:  config.HistoryFlushInterval,
		Run:       svc.FlushHistory,
		RunOnStop: true,
	}
}

// RedisBackupTask writes changed latest positions to Redis
func RedisBackupTask(svc *position.PositionService) Task {
	return Task{
		Name:      "redis-backup",
		Interval:  config.RedisBackupInterval,
		Run:       svc.SaveDirtyToCache,
		RunOnStop: true,
	}
}

// SimulationTask moves simulated devices on every tick
func SimulationTask(sim *simulator.Simulator) Task {
	return Task{
		Name:     "simulation",
		Interval: config.SimulationInterval,
		Run: func(ctx context.Context) error {
			_, err := sim.Step(ctx, time.Now())
			return err
		},
	}
}
