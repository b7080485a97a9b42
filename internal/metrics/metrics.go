// Package metrics provides Prometheus instrumentation for the Fireside chat
// client. It exposes gauges for presence and subscription counts, counters
// for message and snapshot throughput, and a histogram for send latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OnlineUsers tracks the current online-user count from the presence
	// subscription.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fireside_online_users",
		Help: "Current number of users marked online",
	})

	// SubscriptionsOpen tracks the number of live store subscriptions.
	SubscriptionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fireside_subscriptions_open",
		Help: "Current number of open document store subscriptions",
	})

	// MessagesSent counts send attempts, labeled by outcome: "ok" or "error".
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fireside_messages_sent_total",
		Help: "Total number of message send attempts",
	}, []string{"outcome"}) // outcome = "ok", "error"

	// SnapshotsApplied counts snapshot deliveries, labeled by collection.
	SnapshotsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fireside_snapshots_applied_total",
		Help: "Total number of subscription snapshots applied to the view",
	}, []string{"collection"})

	// ReplyLookupMisses counts reply-target lookups that settled without a
	// match.
	ReplyLookupMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fireside_reply_lookup_misses_total",
		Help: "Total number of reply-target lookups that found no document",
	})

	// SendLatency records the send round-trip latency in seconds.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fireside_send_latency_seconds",
		Help:    "Message send round-trip latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		OnlineUsers,
		SubscriptionsOpen,
		MessagesSent,
		SnapshotsApplied,
		ReplyLookupMisses,
		SendLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
