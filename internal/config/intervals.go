package config

import "time"

// Worker intervals
const (
	// RedisBackupInterval defines how often changed latest positions are written to Redis
	RedisBackupInterval = 5 * time.Second

	// HistoryFlushInterval defines how often queued positions are written to PostgreSQL
	HistoryFlushInterval = 2 * time.Second

	// SimulationInterval defines how often simulated devices move and report
	SimulationInterval = 1 * time.Second

	// StreamHeartbeatInterval keeps idle SSE connections open through proxies
	StreamHeartbeatInterval = 15 * time.Second
)
