// Package metrics exposes prometheus collectors shared across the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveExercises = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "excon_active_exercises",
		Help: "Number of currently deployed exercises",
	})

	InjectsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "excon_injects_delivered_total",
		Help: "Total number of injects published to team feeds",
	}, []string{"scenario", "team"})

	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "excon_scheduler_ticks_total",
		Help: "Total number of scheduler ticks executed",
	}, []string{"scenario"})

	PublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "excon_bus_publish_failures_total",
		Help: "Total number of failed bus publishes by topic",
	}, []string{"topic"})

	StatusStoreFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "excon_status_store_failures_total",
		Help: "Total number of failed status store writes by operation",
	}, []string{"op"})

	WorkersLaunchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "excon_workers_launched_total",
		Help: "Total number of workers launched by kind",
	}, []string{"kind"})
)

var (
	RTLClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "excon_rtl_clients",
		Help: "Number of connected rtl-tcp clients",
	})

	FramesBroadcastTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excon_rtl_frames_broadcast_total",
		Help: "Total number of IQ frames broadcast to rtl-tcp clients",
	})
)

// IncPublishFailure records a failed bus publish for the given topic.
func IncPublishFailure(topic string) {
	if topic == "" {
		topic = "unknown"
	}
	PublishFailuresTotal.WithLabelValues(topic).Inc()
}

// IncStoreFailure records a failed status store write for the given operation.
func IncStoreFailure(op string) {
	if op == "" {
		op = "unknown"
	}
	StatusStoreFailuresTotal.WithLabelValues(op).Inc()
}
