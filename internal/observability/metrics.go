// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// DatabaseQueryLatency records database statement latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billboard_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnectionsTotal is the number of registered realtime clients.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billboard_websocket_connections_total",
		Help: "Total number of registered WebSocket clients",
	})

	// WebSocketRoomMembers is the number of room memberships across all listings.
	WebSocketRoomMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billboard_websocket_room_members",
		Help: "Number of listing room memberships",
	})

	// WebSocketBackpressureDrops counts messages dropped because a client could not keep up.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// EventsPublished counts marketplace events by type and delivery path.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_events_published_total",
		Help: "Marketplace events handed to the fan-out, by type and transport",
	}, []string{"event_type", "transport"})

	// UpstreamFailures counts absorbed failures of the embedder and vector index.
	UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_upstream_failures_total",
		Help: "Failures of external collaborators that were absorbed",
	}, []string{"component", "operation"})

	// SimilarSearches counts similarity searches by the source that answered.
	SimilarSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_similar_searches_total",
		Help: "Similarity searches by result source",
	}, []string{"source"})

	// SweepAffected counts rows changed by maintenance sweeps.
	SweepAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_sweep_affected_total",
		Help: "Rows transitioned by maintenance sweeps",
	}, []string{"sweep"})

	// TasksProcessed counts background tasks by type and outcome.
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_tasks_processed_total",
		Help: "Background tasks processed by type and outcome",
	}, []string{"task_type", "outcome"})
)

const startTimeKey = "observability:start"

// RegisterGormMetrics records statement latency for every gorm operation.
func RegisterGormMetrics(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startTimeKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startTimeKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "raw"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	steps := []error{
		cb.Create().Before("gorm:create").Register("metrics:before_create", before),
		cb.Create().After("gorm:create").Register("metrics:after_create", after("create")),
		cb.Query().Before("gorm:query").Register("metrics:before_query", before),
		cb.Query().After("gorm:query").Register("metrics:after_query", after("query")),
		cb.Update().Before("gorm:update").Register("metrics:before_update", before),
		cb.Update().After("gorm:update").Register("metrics:after_update", after("update")),
		cb.Delete().Before("gorm:delete").Register("metrics:before_delete", before),
		cb.Delete().After("gorm:delete").Register("metrics:after_delete", after("delete")),
		cb.Raw().Before("gorm:raw").Register("metrics:before_raw", before),
		cb.Raw().After("gorm:raw").Register("metrics:after_raw", after("raw")),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	return nil
}
