package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PositionsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assettracker_positions_decoded_total",
		Help: "Telemetry messages decoded into position updates",
	})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettracker_decode_errors_total",
		Help: "Telemetry messages rejected by the decoder, by offending field",
	}, []string{"field"})
	UplinksDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettracker_uplinks_decoded_total",
		Help: "LoRaWAN uplink frames decoded, by frame kind",
	}, []string{"kind"})
	HubPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettracker_hub_published_total",
		Help: "Events published on the hub, by topic",
	}, []string{"topic"})
	HubDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettracker_hub_deliveries_total",
		Help: "Callbacks invoked by the hub, by topic",
	}, []string{"topic"})
	SubscriberErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettracker_hub_subscriber_errors_total",
		Help: "Subscriber callbacks that failed or panicked, by topic",
	}, []string{"topic"})
	PublishLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assettracker_hub_publish_latency_seconds",
		Help:    "Time for a publish to reach every subscriber",
		Buckets: prometheus.DefBuckets,
	})
	StaleUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assettracker_stale_updates_total",
		Help: "Position updates older than the latest known position",
	})
	HistoryRowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assettracker_history_rows_written_total",
		Help: "Position rows persisted to the history store",
	})
	HistoryFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assettracker_history_flush_errors_total",
		Help: "Failed history batch writes",
	})
	RedisSetErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assettracker_redis_set_errors_total",
		Help: "Errors writing latest positions to Redis",
	})
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assettracker_active_streams",
		Help: "Open live position streams",
	})
)

func ObservePublishLatency(start time.Time) {
	PublishLatency.Observe(time.Since(start).Seconds())
}
