package pubsub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "albumkeep_published_total",
		Help: "Messages published per topic.",
	}, []string{"topic"})

	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "albumkeep_processed_total",
		Help: "Messages processed successfully per consumer.",
	}, []string{"consumer"})

	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "albumkeep_failed_total",
		Help: "Message processing failures per consumer.",
	}, []string{"consumer"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "albumkeep_dropped_total",
		Help: "Malformed messages dropped without retry per consumer.",
	}, []string{"consumer"})

	deadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "albumkeep_dead_lettered_total",
		Help: "Messages routed to a dead-letter target per queue.",
	}, []string{"queue"})
)
