package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dmrelay_messages_persisted_total",
			Help: "Messages written to the history store",
		},
	)

	MessagesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dmrelay_messages_deduplicated_total",
			Help: "Sends collapsed into a previously persisted message",
		},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmrelay_messages_rejected_total",
			Help: "Sends answered with an error ack",
		},
		[]string{"code"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmrelay_deliveries_total",
			Help: "newMessage events pushed to live connections",
		},
		[]string{"target"}, // "receiver" or "sender"
	)

	SubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dmrelay_submit_duration_seconds",
			Help:    "Time to validate, deduplicate, persist and fan out a send",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	DedupSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dmrelay_dedup_swept_total",
			Help: "Expired dedup entries reclaimed by the sweeper",
		},
	)

	ConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmrelay_connected_users",
			Help: "Users with at least one live connection",
		},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmrelay_live_connections",
			Help: "Live transport connections",
		},
	)
)
