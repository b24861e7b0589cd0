package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"assettracker/internal/model"
	"assettracker/internal/observability"
	"assettracker/internal/service/storage"
)

// Publisher hands accepted updates to live subscribers
type Publisher interface {
	PublishPosition(ctx context.Context, u model.PositionUpdate) error
}

// HistoryWriter appends updates to the tracking store
type HistoryWriter interface {
	InsertBatch(ctx context.Context, updates []model.PositionUpdate) error
}

// LatestCache persists the latest position of each device across restarts
type LatestCache interface {
	SaveLatest(ctx context.Context, positions map[string]model.PositionUpdate) error
	LoadLatest(ctx context.Context) (map[string]model.PositionUpdate, error)
}

// maxPendingHistory bounds the history queue while the store is unreachable
const maxPendingHistory = 100_000

// PositionService is the single entry point for decoded telemetry. It keeps
// the latest position per device, queues every update for history and
// publishes it to the hub.
type PositionService struct {
	latest    storage.Storage[string, model.PositionUpdate]
	publisher Publisher
	history   HistoryWriter
	cache     LatestCache
	logger    *slog.Logger

	pendingMu sync.Mutex
	pending   []model.PositionUpdate

	initMu      sync.Mutex
	initialized bool
}

type Option func(*PositionService)

func WithHistory(w HistoryWriter) Option {
	return func(s *PositionService) { s.history = w }
}

func WithCache(c LatestCache) Option {
	return func(s *PositionService) { s.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *PositionService) { s.logger = l }
}

func NewPositionService(latest storage.Storage[string, model.PositionUpdate], publisher Publisher, opts ...Option) *PositionService {
	s := &PositionService{
		latest:    latest,
		publisher: publisher,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "position")
	return s
}

// InitService warms the latest positions from the cache. It runs once.
func (s *PositionService) InitService(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized || s.cache == nil {
		s.initialized = true
		return nil
	}

	start := time.Now()
	cached, err := s.cache.LoadLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load latest positions: %w", err)
	}

	loaded := 0
	for id, u := range cached {
		if s.latest.SetIf(id, u, newerThan(u)) {
			loaded++
		}
	}
	// warmed entries are already in the cache
	s.latest.TakeDirty()

	s.logger.Info("latest positions loaded", "count", loaded, "took", time.Since(start))
	s.initialized = true
	return nil
}

func newerThan(u model.PositionUpdate) func(model.PositionUpdate, bool) bool {
	return func(current model.PositionUpdate, exists bool) bool {
		return !exists || u.NewerThan(current)
	}
}

// Ingest records a decoded update. The latest position only moves forward in
// sample time; older updates still go to history and to subscribers, whose
// views discard them on their own.
func (s *PositionService) Ingest(ctx context.Context, u model.PositionUpdate) error {
	if !s.latest.SetIf(u.DeviceID, u, newerThan(u)) {
		observability.StaleUpdates.Inc()
	}

	if s.history != nil {
		s.enqueue(u)
	}

	if err := s.publisher.PublishPosition(ctx, u); err != nil {
		return fmt.Errorf("failed to publish position of %s: %w", u.DeviceID, err)
	}
	return nil
}

func (s *PositionService) enqueue(updates ...model.PositionUpdate) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	s.pending = append(s.pending, updates...)
	if over := len(s.pending) - maxPendingHistory; over > 0 {
		s.logger.Warn("history queue full, dropping oldest updates", "dropped", over)
		s.pending = append(s.pending[:0:0], s.pending[over:]...)
	}
}

func (s *PositionService) takePending() []model.PositionUpdate {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	batch := s.pending
	s.pending = nil
	return batch
}

// PendingHistory returns how many updates wait for the next flush
func (s *PositionService) PendingHistory() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// FlushHistory writes queued updates. On failure they are queued again ahead
// of anything that arrived meanwhile.
func (s *PositionService) FlushHistory(ctx context.Context) error {
	if s.history == nil {
		return nil
	}
	batch := s.takePending()
	if len(batch) == 0 {
		return nil
	}

	if err := s.history.InsertBatch(ctx, batch); err != nil {
		observability.HistoryFlushErrors.Inc()
		s.pendingMu.Lock()
		s.pending = append(batch, s.pending...)
		s.pendingMu.Unlock()
		return fmt.Errorf("failed to flush %d positions: %w", len(batch), err)
	}

	observability.HistoryRowsWritten.Add(float64(len(batch)))
	s.logger.Debug("history flushed", "rows", len(batch))
	return nil
}

// SaveDirtyToCache writes latest positions changed since the last save
func (s *PositionService) SaveDirtyToCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	dirty := s.latest.TakeDirty()
	if len(dirty) == 0 {
		return nil
	}

	if err := s.cache.SaveLatest(ctx, dirty); err != nil {
		observability.RedisSetErrors.Inc()
		keys := make([]string, 0, len(dirty))
		for id := range dirty {
			keys = append(keys, id)
		}
		s.latest.MarkDirty(keys)
		return err
	}

	s.logger.Debug("latest positions cached", "count", len(dirty))
	return nil
}

// Latest returns the newest known position of a device
func (s *PositionService) Latest(deviceID string) (model.PositionUpdate, bool) {
	return s.latest.Get(deviceID)
}

// ReceivedAt reports when the latest position of a device was stored
func (s *PositionService) ReceivedAt(deviceID string) (time.Time, bool) {
	return s.latest.UpdatedAt(deviceID)
}

// AllLatest returns the newest known position of every device
func (s *PositionService) AllLatest() []model.PositionUpdate {
	return s.latest.GetAllValues()
}

func (s *PositionService) DeviceCount() int {
	return s.latest.Count()
}
