package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operational counters, exposed on /metrics. Kept to the handful that
// answer "is the system moving": message throughput, room churn, event
// fan-out.
var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_sent_total",
		Help: "Messages accepted by the messaging coordinator.",
	})

	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_rooms_created_total",
		Help: "Rooms created, directly or implicitly during send.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_events_published_total",
		Help: "Events handed to sinks, by event type.",
	}, []string{"type"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_ws_clients",
		Help: "Currently connected websocket clients.",
	})
)
